// File: internal/orchestrator/handlers.go
package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/browser"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/prompts"
	"github.com/xkilldash9x/pilot-cli/internal/resolver"
	"github.com/xkilldash9x/pilot-cli/internal/task"
)

const (
	submitButtonDescription = "Find the submit button for the form"
	formFieldDescription    = "Find the form field for %s"
)

// requirePage returns the live page or ErrNotInitialized.
func (o *Orchestrator) requirePage() (schemas.Page, error) {
	if o.page == nil {
		return nil, ErrNotInitialized
	}
	return o.page, nil
}

// load navigates to url, waits for the network to settle and notes the
// anchors found on the page.
func (o *Orchestrator) load(ctx context.Context, t *task.Task, page schemas.Page, url string) error {
	if err := page.Goto(ctx, url); err != nil {
		return err
	}
	if err := page.WaitForNetworkIdle(ctx); err != nil {
		return err
	}
	o.discoverURLs(ctx, t, page)
	return nil
}

// discoverURLs appends up to maxURLs links of the current page to the task.
// Failures only cost the discovered URLs, never the task.
func (o *Orchestrator) discoverURLs(ctx context.Context, t *task.Task, page schemas.Page) {
	if o.maxURLs <= 0 {
		return
	}
	links, err := page.Links(ctx)
	if err != nil {
		o.logger.Warn("Failed to collect links.", zap.String("task_id", t.ID()), zap.Error(err))
		return
	}

	room := o.maxURLs - len(t.DiscoveredURLs())
	for _, l := range links {
		if room <= 0 {
			break
		}
		if l.URL == "" {
			continue
		}
		t.AddDiscoveredURL(l.URL, l.Text)
		room--
	}
}

func (o *Orchestrator) handleNavigation(ctx context.Context, t *task.Task, url string) (*task.Result, error) {
	page, err := o.requirePage()
	if err != nil {
		return nil, err
	}
	if err := o.load(ctx, t, page, url); err != nil {
		return nil, err
	}

	shot, err := page.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	perception, err := o.perception.ProcessScreenshot(ctx, shot)
	if err != nil {
		return nil, fmt.Errorf("screenshot perception failed: %w", err)
	}

	plan, err := o.inference.GenerateCompletion(ctx, o.languageModel,
		prompts.BuildNavigation(perception.ParsedElements, t.InitialPrompt()),
		schemas.CompletionOptions{})
	if err != nil {
		return nil, fmt.Errorf("navigation planning failed: %w", err)
	}

	content, err := browser.ExtractPageContent(ctx, page)
	if err != nil {
		return nil, err
	}

	return &task.Result{
		VisionAnalysis: strings.Join(perception.ParsedElements, "\n"),
		AnnotatedImage: perception.AnnotatedImage,
		NavigationPlan: plan.Response,
		PageContent:    content.HTML,
		PageTitle:      content.Title,
	}, nil
}

func (o *Orchestrator) handleGeneric(ctx context.Context, t *task.Task, url string) (*task.Result, error) {
	page, err := o.requirePage()
	if err != nil {
		return nil, err
	}
	if err := o.load(ctx, t, page, url); err != nil {
		return nil, err
	}

	shot, err := page.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	content, err := browser.ExtractPageContent(ctx, page)
	if err != nil {
		return nil, err
	}

	analysis, err := o.inference.GenerateCompletion(ctx, o.visionModel, prompts.VisionAnalysis.Content,
		schemas.CompletionOptions{ImageBase64: base64.StdEncoding.EncodeToString(shot)})
	if err != nil {
		return nil, fmt.Errorf("vision analysis failed: %w", err)
	}

	plan, err := o.inference.GenerateCompletion(ctx, o.languageModel,
		prompts.BuildTaskPlanning(analysis.Response, t.InitialPrompt()),
		schemas.CompletionOptions{})
	if err != nil {
		return nil, fmt.Errorf("task planning failed: %w", err)
	}

	return &task.Result{
		VisionAnalysis: analysis.Response,
		TaskPlan:       plan.Response,
		PageContent:    content.HTML,
		PageTitle:      content.Title,
	}, nil
}

// handleFormFill fills each form field, in sorted field order, with its value.
// The page content is re-read per field since filling may change it.
func (o *Orchestrator) handleFormFill(ctx context.Context, t *task.Task) error {
	page, err := o.requirePage()
	if err != nil {
		return err
	}

	data := t.FormData()
	for _, field := range t.FormFields() {
		content, err := page.Content(ctx)
		if err != nil {
			return err
		}

		handle, err := o.resolver.Resolve(ctx, page, fmt.Sprintf(formFieldDescription, field), content)
		if err != nil {
			if o.skipMiss(err, zap.String("task_id", t.ID()), zap.String("field", field)) {
				continue
			}
			return fmt.Errorf("form field %q: %w", field, err)
		}
		if err := handle.Fill(ctx, data[field]); err != nil {
			return fmt.Errorf("form field %q: %w", field, err)
		}
	}
	return nil
}

func (o *Orchestrator) handleSubmit(ctx context.Context) error {
	page, err := o.requirePage()
	if err != nil {
		return err
	}

	content, err := page.Content(ctx)
	if err != nil {
		return err
	}
	button, err := o.resolver.Resolve(ctx, page, submitButtonDescription, content)
	if err != nil {
		if o.skipMiss(err) {
			return nil
		}
		return fmt.Errorf("submit button: %w", err)
	}

	if err := button.Click(ctx); err != nil {
		return err
	}
	return page.WaitForNetworkIdle(ctx)
}

// skipMiss reports whether err is a resolution miss the policy lets through.
func (o *Orchestrator) skipMiss(err error, fields ...zap.Field) bool {
	if !resolver.IsMiss(err) || o.policy != config.PolicySkip {
		return false
	}
	o.logger.Warn("Element could not be resolved, skipping.", append(fields, zap.Error(err))...)
	return true
}
