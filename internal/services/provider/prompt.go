package provider

import (
	"fmt"
	"strings"
)

// BuildScrapePrompt wraps the user's research prompt in the instruction the
// scrape session runs against perplexity.ai. The wrapper asks for broad
// source coverage so the analysis phase has material to work with.
func BuildScrapePrompt(originalPrompt string) string {
	return strings.TrimSpace(fmt.Sprintf(`Research the following topic and provide a thorough answer with as many
distinct sources as possible: %s

Include social media profiles, official sites, professional pages, news
coverage, community discussion and reviews where available. For every claim,
cite the source URL.`, strings.TrimSpace(originalPrompt)))
}
