// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
)

const geminiService = "Gemini"

// geminiModels is the slice of *genai.Models the client uses.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	List(ctx context.Context, cfg *genai.ListModelsConfig) (genai.Page[genai.Model], error)
}

// GeminiClient implements schemas.InferenceGateway on the Google GenAI SDK.
// Screenshots are sent as inline PNG parts.
type GeminiClient struct {
	models      geminiModels
	temperature float32
	limiter     *rate.Limiter
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewGeminiClient creates the SDK client. cfg.BaseURL, when set, overrides the API endpoint.
func NewGeminiClient(ctx context.Context, cfg config.InferenceConfig, logger *zap.Logger, metrics *observability.Metrics) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, &config.ConfigError{Field: "inference.api_key", Reason: "is required for the gemini provider"}
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGeminiClient(client.Models, cfg, logger, metrics), nil
}

func newGeminiClient(models geminiModels, cfg config.InferenceConfig, logger *zap.Logger, metrics *observability.Metrics) *GeminiClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{
		models:      models,
		temperature: cfg.Temperature,
		limiter:     newLimiter(cfg),
		logger:      logger.Named("llm_client.gemini"),
		metrics:     metrics,
	}
}

// GenerateCompletion sends the prompt, plus the image when one is attached, as a single user turn.
func (c *GeminiClient) GenerateCompletion(ctx context.Context, model, prompt string, opts schemas.CompletionOptions) (*schemas.Completion, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if opts.ImageBase64 != "" {
		img, err := base64.StdEncoding.DecodeString(opts.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 image: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(img, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genCfg := &genai.GenerateContentConfig{}
	if c.temperature > 0 {
		genCfg.Temperature = genai.Ptr(c.temperature)
	}

	if err := waitTurn(ctx, c.limiter); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, model, contents, genCfg)
	elapsed := time.Since(start)
	c.metrics.ObserveGateway("gemini", "generate", elapsed, err)
	if err != nil {
		return nil, wrapGeminiError(err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini API returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety || candidate.FinishReason == genai.FinishReasonBlocklist {
		return nil, fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason)
	}

	out := &schemas.Completion{
		Model:         model,
		CreatedAt:     resp.CreateTime,
		Response:      resp.Text(),
		Done:          true,
		DoneReason:    strings.ToLower(string(candidate.FinishReason)),
		TotalDuration: elapsed,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.PromptEvalCount = int(u.PromptTokenCount)
		out.EvalCount = int(u.CandidatesTokenCount)
	}

	c.logger.Info("LLM generation complete (Gemini)",
		zap.String("model", out.Model),
		zap.Duration("duration", elapsed),
		zap.Int("prompt_tokens", out.PromptEvalCount),
		zap.Int("completion_tokens", out.EvalCount),
	)
	return out, nil
}

// ListModels returns the first page of models visible to the API key.
func (c *GeminiClient) ListModels(ctx context.Context) ([]schemas.ModelInfo, error) {
	start := time.Now()
	page, err := c.models.List(ctx, nil)
	c.metrics.ObserveGateway("gemini", "list_models", time.Since(start), err)
	if err != nil {
		return nil, wrapGeminiError(err)
	}

	models := make([]schemas.ModelInfo, 0, len(page.Items))
	for _, m := range page.Items {
		if m == nil {
			continue
		}
		models = append(models, schemas.ModelInfo{
			Name:   strings.TrimPrefix(m.Name, "models/"),
			Digest: m.Version,
		})
	}
	return models, nil
}

// CheckModelStatus reports whether model is listed. Lookup failures read as false.
func (c *GeminiClient) CheckModelStatus(ctx context.Context, model string) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		c.logger.Warn("Error checking model status", zap.String("model", model), zap.Error(err))
		return false
	}
	want := strings.TrimPrefix(model, "models/")
	for _, m := range models {
		if m.Name == want {
			return true
		}
	}
	return false
}

// wrapGeminiError converts SDK API errors into GatewayErrors.
func wrapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &schemas.GatewayError{
			Service:    geminiService,
			StatusCode: apiErr.Code,
			Status:     apiErr.Status,
			Body:       apiErr.Message,
		}
	}
	return fmt.Errorf("gemini request failed: %w", err)
}
