package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

func TestNewClient(t *testing.T) {
	t.Run("ollama", func(t *testing.T) {
		gw, err := NewClient(context.Background(), getValidInferenceConfig("http://localhost:11434"), zap.NewNop(), nil)
		require.NoError(t, err)
		assert.IsType(t, &OllamaClient{}, gw)
	})

	t.Run("empty provider defaults to ollama", func(t *testing.T) {
		cfg := getValidInferenceConfig("http://localhost:11434")
		cfg.Provider = ""
		gw, err := NewClient(context.Background(), cfg, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.IsType(t, &OllamaClient{}, gw)
	})

	t.Run("gemini", func(t *testing.T) {
		cfg := getValidInferenceConfig("")
		cfg.Provider = config.ProviderGemini
		cfg.APIKey = "test-key"
		gw, err := NewClient(context.Background(), cfg, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.IsType(t, &GeminiClient{}, gw)
	})

	t.Run("unsupported", func(t *testing.T) {
		cfg := getValidInferenceConfig("http://localhost:11434")
		cfg.Provider = "openai"
		gw, err := NewClient(context.Background(), cfg, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Nil(t, gw)
		assert.Contains(t, err.Error(), "unsupported LLM provider")
	})
}
