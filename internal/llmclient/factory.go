package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/veskora/screenpilot/api/schemas"
	"github.com/veskora/screenpilot/internal/config"
)

// NewClient is a factory function that creates an LLMClient for a single
// model based on its configured provider.
func NewClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}

// NewRouterFromConfig builds both tier clients and wires them into a router.
// The returned router is what the agent consumes: discovery requests carry
// the powerful tier, decision requests the fast tier.
func NewRouterFromConfig(cfg config.LLMConfig, logger *zap.Logger) (*LLMRouter, error) {
	fastClient, err := NewClient(cfg.Fast, logger)
	if err != nil {
		return nil, fmt.Errorf("building fast tier client: %w", err)
	}

	powerfulClient, err := NewClient(cfg.Powerful, logger)
	if err != nil {
		return nil, fmt.Errorf("building powerful tier client: %w", err)
	}

	return NewLLMRouter(logger, fastClient, powerfulClient)
}
