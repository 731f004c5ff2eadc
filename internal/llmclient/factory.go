// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
)

// NewClient creates the InferenceGateway for the configured provider.
func NewClient(ctx context.Context, cfg config.InferenceConfig, logger *zap.Logger, metrics *observability.Metrics) (schemas.InferenceGateway, error) {
	switch cfg.Provider {
	case config.ProviderOllama, "":
		client, err := NewOllamaClient(cfg, logger, metrics)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, cfg, logger, metrics)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderOllama, config.ProviderGemini)
	}
}
