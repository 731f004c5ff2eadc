// File: internal/orchestrator/orchestrator.go
// Description: Drives tasks through their lifecycle against a single browser
// page. It is injected with the gateways and the browser launcher through
// interfaces, making it decoupled and testable.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
	"github.com/xkilldash9x/pilot-cli/internal/resolver"
	"github.com/xkilldash9x/pilot-cli/internal/task"
)

var (
	// ErrNoURL is the precondition failure for a task with no URL anywhere in its ancestry.
	ErrNoURL = errors.New("no URL available for task execution")
	// ErrNotInitialized is returned by handlers that need the page before Initialize ran.
	ErrNotInitialized = errors.New("page is not initialized")
)

const journalTimeout = 5 * time.Second

// BrowserLauncher starts the browser engine.
type BrowserLauncher func(ctx context.Context) (schemas.Browser, error)

// Journal records terminal task outcomes.
type Journal interface {
	RecordTask(ctx context.Context, snap task.Snapshot, elapsed time.Duration) error
}

// Dependencies are the collaborators of an Orchestrator. Journal and Metrics are optional.
type Dependencies struct {
	Inference  schemas.InferenceGateway
	Perception schemas.PerceptionGateway
	Launch     BrowserLauncher
	Journal    Journal
	Metrics    *observability.Metrics
}

// Orchestrator executes tasks one at a time against the page it owns.
type Orchestrator struct {
	logger        *zap.Logger
	visionModel   string
	languageModel string
	policy        config.UnresolvedPolicy
	maxURLs       int
	taskTimeout   time.Duration

	inference  schemas.InferenceGateway
	perception schemas.PerceptionGateway
	launch     BrowserLauncher
	journal    Journal
	metrics    *observability.Metrics
	resolver   *resolver.Resolver

	// mu serializes task execution and the page lifecycle.
	mu      sync.Mutex
	browser schemas.Browser
	page    schemas.Page
}

// New validates the configuration and wires the orchestrator. A missing
// gateway base URL or model name is reported as a *config.ConfigError.
func New(cfg config.Interface, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		deps.Inference == nil ||
		deps.Perception == nil ||
		deps.Launch == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}

	inferenceCfg := cfg.Inference()
	if err := inferenceCfg.Validate(); err != nil {
		return nil, err
	}
	perceptionCfg := cfg.Perception()
	if err := perceptionCfg.Validate(); err != nil {
		return nil, err
	}
	orchCfg := cfg.Orchestrator()
	if orchCfg.UnresolvedPolicy == "" {
		orchCfg.UnresolvedPolicy = config.PolicySkip
	}
	if err := orchCfg.Validate(); err != nil {
		return nil, err
	}

	logger = logger.Named("orchestrator")
	return &Orchestrator{
		logger:        logger,
		visionModel:   inferenceCfg.VisionModel,
		languageModel: inferenceCfg.LanguageModel,
		policy:        orchCfg.UnresolvedPolicy,
		maxURLs:       orchCfg.MaxDiscoveredURLs,
		taskTimeout:   orchCfg.TaskTimeout,
		inference:     deps.Inference,
		perception:    deps.Perception,
		launch:        deps.Launch,
		journal:       deps.Journal,
		metrics:       deps.Metrics,
		resolver:      resolver.New(deps.Inference, inferenceCfg.LanguageModel, logger),
	}, nil
}

// -- Lifecycle --

// Initialize launches the browser, opens the page and connects the perception
// gateway. Calling it again while initialized is a no-op.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.page != nil {
		return nil
	}

	b, err := o.launch(ctx)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	page, err := b.NewPage(ctx)
	if err != nil {
		o.closeQuietly(ctx, b.Close, "browser")
		return fmt.Errorf("failed to open page: %w", err)
	}
	if err := o.perception.Connect(ctx); err != nil {
		o.closeQuietly(ctx, page.Close, "page")
		o.closeQuietly(ctx, b.Close, "browser")
		return fmt.Errorf("failed to connect perception gateway: %w", err)
	}

	o.browser, o.page = b, page
	o.logger.Info("Orchestrator initialized.")
	return nil
}

// Cleanup closes the page and the browser. It is safe to call more than once
// and before Initialize.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	if o.page != nil {
		if err := o.page.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		o.page = nil
	}
	if o.browser != nil {
		if err := o.browser.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		o.browser = nil
		o.logger.Info("Orchestrator cleaned up.")
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) closeQuietly(ctx context.Context, closeFn func(context.Context) error, what string) {
	if err := closeFn(ctx); err != nil {
		o.logger.Warn("Cleanup after failed initialization errored.", zap.String("resource", what), zap.Error(err))
	}
}

// -- Execution --

// ExecuteTask runs t to a terminal status. On success the handler's result (nil
// for form_fill and submit) is stored and returned; on failure the error is
// recorded on the task, which forces it to failed, and returned. Calls are
// serialized; re-executing a completed task is not rejected.
func (o *Orchestrator) ExecuteTask(ctx context.Context, t *task.Task) (*task.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	log := o.logger.With(zap.String("task_id", t.ID()), zap.String("type", string(t.Type())))
	log.Info("Executing task.")

	o.metrics.TaskStarted()
	t.UpdateStatus(task.StatusInProgress)

	runCtx := ctx
	if o.taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.taskTimeout)
		defer cancel()
	}

	result, err := o.dispatch(runCtx, t)
	if err != nil {
		t.SetError(err)
		log.Error("Task failed.", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	} else {
		if result != nil {
			t.SetResult(result)
		}
		t.UpdateStatus(task.StatusCompleted)
		log.Info("Task completed.", zap.Duration("elapsed", time.Since(start)))
	}

	o.report(ctx, t, time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// dispatch checks the URL precondition and hands t to exactly one handler.
func (o *Orchestrator) dispatch(ctx context.Context, t *task.Task) (*task.Result, error) {
	initialURL, ok := t.InitialURL()
	if !ok {
		return nil, fmt.Errorf("task %s: %w", t.ID(), ErrNoURL)
	}

	switch {
	case t.IsNavigationTask():
		return o.handleNavigation(ctx, t, initialURL)
	case t.IsFormFillTask():
		return nil, o.handleFormFill(ctx, t)
	case t.IsSubmitTask():
		return nil, o.handleSubmit(ctx)
	default:
		return o.handleGeneric(ctx, t, initialURL)
	}
}

// report hands the terminal outcome to the metrics and journal sinks. Sink
// failures are logged and never change the task outcome.
func (o *Orchestrator) report(ctx context.Context, t *task.Task, elapsed time.Duration) {
	o.metrics.TaskFinished(string(t.Type()), string(t.Status()), elapsed)
	if o.journal == nil {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := o.journal.RecordTask(recordCtx, t.Snapshot(), elapsed); err != nil {
		o.logger.Warn("Failed to record task in journal.", zap.String("task_id", t.ID()), zap.Error(err))
	}
}

// RunPlan executes root and then, in order, one subtask per command. It stops
// at the first failure and returns it.
func (o *Orchestrator) RunPlan(ctx context.Context, root *task.Task, commands []task.Command) error {
	if _, err := o.ExecuteTask(ctx, root); err != nil {
		return err
	}
	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		sub := o.CreateSubtaskFromCommand(root, cmd)
		if _, err := o.ExecuteTask(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

// -- Commands --

// DetermineTaskType classifies command text by the first of "fill", "submit"
// and "navigate" it contains, ignoring case. Anything else is generic.
func DetermineTaskType(text string) task.Type {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "fill"):
		return task.TypeFormFill
	case strings.Contains(lower, "submit"):
		return task.TypeSubmit
	case strings.Contains(lower, "navigate"):
		return task.TypeNavigation
	default:
		return task.TypeGeneric
	}
}

// CreateSubtaskFromCommand turns cmd into the next subtask of parent, with ID
// "<parent>_sub_<n>" where n is the subtask's 1-based position. The command
// text is also appended to the parent's command audit trail.
func (o *Orchestrator) CreateSubtaskFromCommand(parent *task.Task, cmd task.Command) *task.Task {
	id := fmt.Sprintf("%s_sub_%d", parent.ID(), parent.SubtaskCount()+1)
	sub := task.New(id, DetermineTaskType(cmd.Task), cmd.Task,
		task.WithURL(cmd.URL),
		task.WithRegistry(parent.Registry()),
	)
	if len(cmd.FormData) > 0 {
		sub.SetFormData(cmd.FormData)
	}
	parent.AddSubtask(sub)
	parent.AddCommand(cmd.Task)

	o.logger.Debug("Created subtask from command.",
		zap.String("parent_id", parent.ID()),
		zap.String("subtask_id", id),
		zap.String("type", string(sub.Type())),
	)
	return sub
}
