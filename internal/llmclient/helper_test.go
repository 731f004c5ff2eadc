package llmclient

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// setupTestLogger creates a logger whose output can be inspected.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// getValidInferenceConfig returns a config pointing at baseURL.
func getValidInferenceConfig(baseURL string) config.InferenceConfig {
	return config.InferenceConfig{
		Provider:      config.ProviderOllama,
		BaseURL:       baseURL,
		VisionModel:   "llava",
		LanguageModel: "llama2",
		APITimeout:    5 * time.Second,
		NumCtx:        8192,
	}
}
