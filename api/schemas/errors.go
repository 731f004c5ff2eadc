package schemas

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSelectorTimeout is returned by Page.WaitForSelector when nothing matched
// the selector before the engine's selector timeout expired.
var ErrSelectorTimeout = errors.New("timed out waiting for selector")

// GatewayError reports a non-success answer from a remote inference or perception service.
type GatewayError struct {
	Service    string // "Ollama", "Gemini", "Gradio"
	StatusCode int
	Status     string
	Body       string
}

// NewGatewayError builds a GatewayError from a status code and a response body.
func NewGatewayError(service string, statusCode int, body []byte) *GatewayError {
	return &GatewayError{
		Service:    service,
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       string(body),
	}
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s API error: %s (status %d)\nDetails: %s", e.Service, e.Status, e.StatusCode, e.Body)
}
