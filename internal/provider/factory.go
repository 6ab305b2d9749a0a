package provider

import (
	"fmt"

	"github.com/stellarlinkco/tinyclaw/internal/config"
)

// New builds a Provider for the given model on top of the configured
// transport. providerType falls back to the top-level provider when empty.
func New(cfg config.ProviderConfig, providerType, model string, maxTokens int) (Provider, error) {
	if providerType == "" {
		providerType = cfg.Type
	}
	switch providerType {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     model,
			MaxTokens: maxTokens,
		})
	case "", "anthropic":
		return NewAnthropic(AnthropicConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     model,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown provider type %q", providerType)
	}
}
