// File: internal/resolver/resolver.go
// Description: Maps a natural language element description onto a live page
// element by asking the language model for a CSS selector.

package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/llmutil"
	"github.com/xkilldash9x/pilot-cli/internal/prompts"
)

var (
	// ErrSelectorNotFound means the model answer contained no selector.
	ErrSelectorNotFound = errors.New("no selector in model response")
	// ErrElementNotFound means the selector never matched an element on the page.
	ErrElementNotFound = errors.New("element not found on page")
)

// IsMiss reports whether err is a resolution miss rather than a gateway or browser failure.
func IsMiss(err error) bool {
	return errors.Is(err, ErrSelectorNotFound) || errors.Is(err, ErrElementNotFound)
}

// Resolver turns element descriptions into element handles.
type Resolver struct {
	inference schemas.InferenceGateway
	model     string
	logger    *zap.Logger
}

// New creates a resolver that asks model through inference.
func New(inference schemas.InferenceGateway, model string, logger *zap.Logger) *Resolver {
	return &Resolver{
		inference: inference,
		model:     model,
		logger:    logger.Named("resolver"),
	}
}

// Resolve asks the language model which selector matches description given
// pageContent, waits for it on page and returns the first matching element.
// Misses are reported as ErrSelectorNotFound or ErrElementNotFound; any other
// error comes from the gateway or the browser.
func (r *Resolver) Resolve(ctx context.Context, page schemas.Page, description, pageContent string) (schemas.ElementHandle, error) {
	prompt := prompts.BuildElementSelection(description, pageContent)

	completion, err := r.inference.GenerateCompletion(ctx, r.model, prompt, schemas.CompletionOptions{})
	if err != nil {
		return nil, fmt.Errorf("element selection for %q failed: %w", description, err)
	}

	selector, ok := llmutil.ParseSelector(completion.Response)
	if !ok {
		r.logger.Debug("Model response named no selector.",
			zap.String("description", description),
			zap.String("response", llmutil.Truncate(completion.Response, 200)),
		)
		return nil, fmt.Errorf("%w for %q", ErrSelectorNotFound, description)
	}

	log := r.logger.With(zap.String("description", description), zap.String("selector", selector))
	log.Debug("Model proposed selector.")

	if err := page.WaitForSelector(ctx, selector); err != nil {
		if errors.Is(err, schemas.ErrSelectorTimeout) {
			log.Debug("Selector never appeared.")
			return nil, fmt.Errorf("%w: %q for %q", ErrElementNotFound, selector, description)
		}
		return nil, fmt.Errorf("waiting for selector %q: %w", selector, err)
	}

	handle, err := page.Query(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("querying selector %q: %w", selector, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: %q for %q", ErrElementNotFound, selector, description)
	}
	return handle, nil
}
