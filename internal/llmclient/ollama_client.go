// internal/llmclient/ollama_client.go
package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/llmutil"
	"github.com/xkilldash9x/pilot-cli/internal/network"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
)

const ollamaService = "Ollama"

// OllamaClient talks to an Ollama server's REST API.
type OllamaClient struct {
	baseURL    string
	numCtx     int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// -- Ollama API Request/Response Structures --

type ollamaOptions struct {
	NumCtx int `json:"num_ctx,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Images  []string       `json:"images,omitempty"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model              string    `json:"model"`
	CreatedAt          time.Time `json:"created_at"`
	Response           string    `json:"response"`
	Done               bool      `json:"done"`
	DoneReason         string    `json:"done_reason"`
	TotalDuration      int64     `json:"total_duration"`
	LoadDuration       int64     `json:"load_duration"`
	PromptEvalCount    int       `json:"prompt_eval_count"`
	PromptEvalDuration int64     `json:"prompt_eval_duration"`
	EvalCount          int       `json:"eval_count"`
	EvalDuration       int64     `json:"eval_duration"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name       string    `json:"name"`
		Size       int64     `json:"size"`
		Digest     string    `json:"digest"`
		ModifiedAt time.Time `json:"modified_at"`
	} `json:"models"`
}

// NewOllamaClient builds a client for cfg.BaseURL. metrics may be nil.
func NewOllamaClient(cfg config.InferenceConfig, logger *zap.Logger, metrics *observability.Metrics) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		return nil, &config.ConfigError{Field: "inference.base_url", Reason: "is required for the ollama provider"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OllamaClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		numCtx:     cfg.NumCtx,
		httpClient: network.NewGatewayClient(cfg.APITimeout, logger),
		limiter:    newLimiter(cfg),
		logger:     logger.Named("llm_client.ollama"),
		metrics:    metrics,
	}, nil
}

// GenerateCompletion posts a non-streaming generate request. A non-2xx reply
// becomes a *schemas.GatewayError carrying the status and body.
func (c *OllamaClient) GenerateCompletion(ctx context.Context, model, prompt string, opts schemas.CompletionOptions) (*schemas.Completion, error) {
	numCtx := opts.NumCtx
	if numCtx == 0 {
		numCtx = c.numCtx
	}
	reqBody := ollamaGenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	}
	if numCtx > 0 {
		reqBody.Options = &ollamaOptions{NumCtx: numCtx}
	}
	if opts.ImageBase64 != "" {
		reqBody.Images = []string{opts.ImageBase64}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	c.logger.Debug("Ollama generate request",
		zap.String("url", c.baseURL+"/api/generate"),
		zap.String("model", model),
		zap.Int("prompt_len", len(prompt)),
		zap.Bool("has_image", opts.ImageBase64 != ""),
		zap.String("image_prefix", llmutil.Truncate(opts.ImageBase64, 10)),
	)

	start := time.Now()
	respBody, err := c.do(ctx, http.MethodPost, "/api/generate", body)
	c.metrics.ObserveGateway("ollama", "generate", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response payload: %w", err)
	}

	c.logger.Info("LLM generation complete (Ollama)",
		zap.String("model", out.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", out.PromptEvalCount),
		zap.Int("completion_tokens", out.EvalCount),
	)

	return &schemas.Completion{
		Model:              out.Model,
		CreatedAt:          out.CreatedAt,
		Response:           out.Response,
		Done:               out.Done,
		DoneReason:         out.DoneReason,
		TotalDuration:      time.Duration(out.TotalDuration),
		LoadDuration:       time.Duration(out.LoadDuration),
		PromptEvalCount:    out.PromptEvalCount,
		PromptEvalDuration: time.Duration(out.PromptEvalDuration),
		EvalCount:          out.EvalCount,
		EvalDuration:       time.Duration(out.EvalDuration),
	}, nil
}

// ListModels returns the models installed on the server.
func (c *OllamaClient) ListModels(ctx context.Context) ([]schemas.ModelInfo, error) {
	start := time.Now()
	respBody, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	c.metrics.ObserveGateway("ollama", "tags", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(respBody, &tags); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	models := make([]schemas.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, schemas.ModelInfo{
			Name:       m.Name,
			Size:       m.Size,
			Digest:     m.Digest,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return models, nil
}

// CheckModelStatus reports whether model is installed. Lookup failures are
// logged and reported as false.
func (c *OllamaClient) CheckModelStatus(ctx context.Context, model string) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		c.logger.Warn("Error checking model status", zap.String("model", model), zap.Error(err))
		return false
	}
	for _, m := range models {
		if m.Name == model {
			return true
		}
	}
	return false
}

func (c *OllamaClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := waitTurn(ctx, c.limiter); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Ollama response", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(respBody)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Ollama API returned error status", zap.Int("status", resp.StatusCode), zap.String("response", string(respBody)))
		return nil, schemas.NewGatewayError(ollamaService, resp.StatusCode, respBody)
	}
	return respBody, nil
}
