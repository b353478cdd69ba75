package analysis

import (
	"encoding/json"
	"fmt"
)

const systemPrompt = `You are an SEO research analyst. You are given raw web research data
collected about a person, business, product, course or website. Produce a
structured SEO report as a single JSON object and nothing else.

The JSON object must have these top-level keys: meta, inventory,
content_analysis, keywords, competitors, social_presence, backlink_analysis,
and optionally recommendations and summary.

Constraints:
- meta.entity_type is one of: person, business, product, course, website, unknown
- meta.confidence_score is between 0 and 1
- keywords.content_keywords holds at most 25 entries
- keywords.keyword_themes holds at most 8 themes, each with at most 8 keywords
- competitors holds at most 15 entries
- recommendations holds at most 25 entries
- every evidence entry cites a real source URL from the provided data

Base every claim on the provided data. Do not invent sources. Respond with
the JSON object only, no markdown fences and no commentary.`

// buildAnalysisPrompt renders the user-facing analysis prompt from the
// original research prompt and the scraped payload.
func buildAnalysisPrompt(originalPrompt string, rawResults []map[string]interface{}) (string, error) {
	data, err := json.MarshalIndent(rawResults, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode scraped data: %w", err)
	}

	return fmt.Sprintf(`Research prompt: %s

Scraped research data (JSON array, one entry per scrape session):

%s

Analyze this data and produce the SEO report JSON.`, originalPrompt, string(data)), nil
}
