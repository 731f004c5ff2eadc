package schemas

import (
	"context"
	"time"
)

// -- Inference Gateway Schemas & Interface --

// CompletionOptions tunes a single completion request.
type CompletionOptions struct {
	// ImageBase64 attaches a single base64 encoded image to the prompt.
	ImageBase64 string `json:"-"`
	// NumCtx sets the context window requested from the model. Zero uses the client default.
	NumCtx int `json:"num_ctx,omitempty"`
}

// Completion is the structured answer returned by an inference backend.
type Completion struct {
	Model              string        `json:"model"`
	CreatedAt          time.Time     `json:"created_at"`
	Response           string        `json:"response"`
	Done               bool          `json:"done"`
	DoneReason         string        `json:"done_reason,omitempty"`
	TotalDuration      time.Duration `json:"total_duration,omitempty"`
	LoadDuration       time.Duration `json:"load_duration,omitempty"`
	PromptEvalCount    int           `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration time.Duration `json:"prompt_eval_duration,omitempty"`
	EvalCount          int           `json:"eval_count,omitempty"`
	EvalDuration       time.Duration `json:"eval_duration,omitempty"`
}

// ModelInfo describes a model known to an inference backend.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// InferenceGateway sends prompts (optionally with an image) to a language or
// vision model and returns the generated text.
//
//go:generate mockery --name InferenceGateway --output ../../internal/mocks --outpkg mocks
type InferenceGateway interface {
	// GenerateCompletion runs a single non-streaming completion against the named model.
	GenerateCompletion(ctx context.Context, model, prompt string, opts CompletionOptions) (*Completion, error)
	// ListModels returns the models the backend can serve.
	ListModels(ctx context.Context) ([]ModelInfo, error)
	// CheckModelStatus reports whether the named model is available. Lookup errors read as false.
	CheckModelStatus(ctx context.Context, model string) bool
}

// -- Perception Gateway Schemas & Interface --

// PerceptionResult is the parsed form of a screenshot.
type PerceptionResult struct {
	// AnnotatedImage is either a URL served by the perception backend or inline image data.
	AnnotatedImage string `json:"annotated_image"`
	// ParsedElements lists one description per detected page element.
	ParsedElements []string `json:"parsed_elements"`
}

// PerceptionGateway turns a screenshot into annotated image data and a list of page elements.
type PerceptionGateway interface {
	// Connect performs the one-time handshake with the backend.
	Connect(ctx context.Context) error
	// ProcessScreenshot parses a PNG screenshot. It connects first when Connect was never called.
	ProcessScreenshot(ctx context.Context, png []byte) (*PerceptionResult, error)
}

// -- Browser Engine Interfaces --

// Link is an anchor found on a page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// ElementHandle is a resolved element on the live page.
type ElementHandle interface {
	// Fill clears the element and types value into it.
	Fill(ctx context.Context, value string) error
	// Click clicks the element.
	Click(ctx context.Context) error
}

// Page controls a single browser tab.
//
//go:generate mockery --name Page --output ../../internal/mocks --outpkg mocks
type Page interface {
	Goto(ctx context.Context, url string) error
	// WaitForNetworkIdle blocks until no request has been in flight for the configured quiet period.
	WaitForNetworkIdle(ctx context.Context) error
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Content returns the serialized HTML of the current document.
	Content(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	InnerText(ctx context.Context, selector string) (string, error)
	// WaitForSelector blocks until selector matches an element or the engine timeout expires.
	WaitForSelector(ctx context.Context, selector string) error
	// Query returns the first element matching selector, or nil when nothing matches.
	Query(ctx context.Context, selector string) (ElementHandle, error)
	// Links lists the anchors of the current document.
	Links(ctx context.Context) ([]Link, error)
	Close(ctx context.Context) error
}

// Browser owns the browser process.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}
