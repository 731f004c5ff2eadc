// File: internal/perception/gradio_client.go
// Description: Client for the screen-parsing model served behind a Gradio app.
// A screenshot is uploaded, the /process endpoint is queued, and the result is
// read from the event stream the Gradio queue answers with.

package perception

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/llmutil"
	"github.com/xkilldash9x/pilot-cli/internal/network"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
)

const (
	gradioService = "Gradio"
	endpointName  = "process"
	// Event payloads carry the annotated image inline, so lines get long.
	maxEventLine = 32 << 20
)

var (
	// ErrProcessingFailed is returned when the Gradio queue reports an error event.
	ErrProcessingFailed = errors.New("perception processing failed")
	// ErrMalformedResult is returned when the completed event cannot be interpreted.
	ErrMalformedResult = errors.New("malformed perception result")
)

// GradioClient implements schemas.PerceptionGateway.
type GradioClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observability.Metrics

	boxThreshold float64
	iouThreshold float64
	usePaddleOCR bool

	mu        sync.Mutex
	connected bool
	apiPrefix string
}

// NewGradioClient builds a client for cfg.BaseURL. It does not contact the server.
func NewGradioClient(cfg config.PerceptionConfig, logger *zap.Logger, metrics *observability.Metrics) (*GradioClient, error) {
	if cfg.BaseURL == "" {
		return nil, &config.ConfigError{Field: "perception.base_url", Reason: "is required"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradioClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   network.NewGatewayClient(cfg.APITimeout, logger),
		logger:       logger.Named("perception.gradio"),
		metrics:      metrics,
		boxThreshold: cfg.BoxThreshold,
		iouThreshold: cfg.IOUThreshold,
		usePaddleOCR: cfg.UsePaddleOCR,
	}, nil
}

// Connect reads the app config to learn the API prefix. Calling it again is a no-op.
func (c *GradioClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	start := time.Now()
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/config", "", nil)
	c.metrics.ObserveGateway("gradio", "connect", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to connect to perception service: %w", err)
	}

	var appCfg struct {
		APIPrefix string `json:"api_prefix"`
		Version   string `json:"version"`
	}
	if err := json.Unmarshal(body, &appCfg); err != nil {
		return fmt.Errorf("failed to decode app config: %w", err)
	}

	c.apiPrefix = strings.TrimRight(appCfg.APIPrefix, "/")
	c.connected = true
	c.logger.Info("Connected to perception service",
		zap.String("url", c.baseURL),
		zap.String("api_prefix", c.apiPrefix),
		zap.String("gradio_version", appCfg.Version))
	return nil
}

// ProcessScreenshot uploads png and runs it through the parser.
func (c *GradioClient) ProcessScreenshot(ctx context.Context, png []byte) (*schemas.PerceptionResult, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.process(ctx, png)
	c.metrics.ObserveGateway("gradio", endpointName, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Screenshot parsed",
		zap.Int("elements", len(result.ParsedElements)),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

func (c *GradioClient) process(ctx context.Context, png []byte) (*schemas.PerceptionResult, error) {
	path, err := c.upload(ctx, png)
	if err != nil {
		return nil, err
	}
	eventID, err := c.call(ctx, path)
	if err != nil {
		return nil, err
	}
	data, err := c.awaitResult(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return decodeResult(data)
}

// -- Gradio HTTP steps --

func (c *GradioClient) apiURL(path string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL + c.apiPrefix + path
}

// upload stores png on the server and returns its server-side path.
func (c *GradioClient) upload(ctx context.Context, png []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="files"; filename="screenshot.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create upload part: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return "", fmt.Errorf("failed to write upload part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish upload body: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.apiURL("/upload"), mw.FormDataContentType(), &buf)
	if err != nil {
		return "", fmt.Errorf("screenshot upload failed: %w", err)
	}

	var paths []string
	if err := json.Unmarshal(body, &paths); err != nil || len(paths) == 0 {
		return "", fmt.Errorf("%w: upload returned %q", ErrMalformedResult, llmutil.Truncate(string(body), 200))
	}
	return paths[0], nil
}

type fileData struct {
	Path string            `json:"path"`
	Meta map[string]string `json:"meta"`
}

// call queues the process endpoint and returns the event ID to poll.
func (c *GradioClient) call(ctx context.Context, path string) (string, error) {
	payload := map[string][]interface{}{
		"data": {
			fileData{Path: path, Meta: map[string]string{"_type": "gradio.FileData"}},
			c.boxThreshold,
			c.iouThreshold,
			c.usePaddleOCR,
		},
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal call payload: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.apiURL("/call/"+endpointName), "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("process call failed: %w", err)
	}

	var queued struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &queued); err != nil || queued.EventID == "" {
		return "", fmt.Errorf("%w: call returned %q", ErrMalformedResult, llmutil.Truncate(string(body), 200))
	}
	return queued.EventID, nil
}

// awaitResult reads the event stream until the complete or error event.
func (c *GradioClient) awaitResult(ctx context.Context, eventID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("/call/"+endpointName+"/"+eventID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, schemas.NewGatewayError(gradioService, resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "complete":
				return []byte(data), nil
			case "error":
				return nil, fmt.Errorf("%w: %s", ErrProcessingFailed, data)
			}
			// generating / heartbeat events carry nothing we need.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}
	return nil, fmt.Errorf("%w: event stream ended without a result", ErrMalformedResult)
}

// decodeResult maps the endpoint outputs onto a PerceptionResult. Output 0 is
// the annotated image (a file object or a plain string), output 1 the element
// list as newline-separated text.
func decodeResult(data []byte) (*schemas.PerceptionResult, error) {
	var outputs []json.RawMessage
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if len(outputs) < 2 {
		return nil, fmt.Errorf("%w: expected 2 outputs, got %d", ErrMalformedResult, len(outputs))
	}

	image, err := decodeImage(outputs[0])
	if err != nil {
		return nil, err
	}

	var elementsText string
	if err := json.Unmarshal(outputs[1], &elementsText); err != nil {
		return nil, fmt.Errorf("%w: parsed elements: %v", ErrMalformedResult, err)
	}

	var elements []string
	for _, line := range strings.Split(elementsText, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			elements = append(elements, line)
		}
	}
	return &schemas.PerceptionResult{AnnotatedImage: image, ParsedElements: elements}, nil
}

func decodeImage(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var file struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return "", fmt.Errorf("%w: annotated image: %v", ErrMalformedResult, err)
	}
	if file.URL != "" {
		return file.URL, nil
	}
	return file.Path, nil
}

func (c *GradioClient) do(ctx context.Context, method, url, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Perception API returned error status",
			zap.String("url", url), zap.Int("status", resp.StatusCode), zap.String("response", llmutil.Truncate(string(respBody), 500)))
		return nil, schemas.NewGatewayError(gradioService, resp.StatusCode, respBody)
	}
	return respBody, nil
}
