package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

// Provider names accepted in llm.default_provider
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// NewLLMService creates the configured LLM service implementation
func NewLLMService(config *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	logger.Info().Str("provider", config.LLM.DefaultProvider).Msg("Initializing LLM service")

	switch config.LLM.DefaultProvider {
	case ProviderClaude:
		return NewClaudeService(&config.Claude, logger)
	case ProviderGemini:
		return NewGeminiService(&config.Gemini, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.LLM.DefaultProvider)
	}
}
