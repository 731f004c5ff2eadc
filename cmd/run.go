// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/browser"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/llmclient"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
	"github.com/xkilldash9x/pilot-cli/internal/orchestrator"
	"github.com/xkilldash9x/pilot-cli/internal/perception"
	"github.com/xkilldash9x/pilot-cli/internal/plan"
	"github.com/xkilldash9x/pilot-cli/internal/store"
	"github.com/xkilldash9x/pilot-cli/internal/task"
)

const (
	cleanupTimeout         = 30 * time.Second
	metricsShutdownTimeout = 5 * time.Second
)

// runner is the part of the orchestrator the run command drives.
type runner interface {
	Initialize(ctx context.Context) error
	RunPlan(ctx context.Context, root *task.Task, commands []task.Command) error
	Cleanup(ctx context.Context) error
}

// runnerFactory builds the runner and a release func for the resources behind
// it. Tests swap it out.
var runnerFactory = newRunner

type runOptions struct {
	planFile string
	id       string
	url      string
	prompt   string
	taskType string
	formData map[string]string
	commands []string
	output   string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Executes a task, and any follow-up commands, against a web page",
		Long: `Executes a root task and then one subtask per follow-up command.

The run is described either by a YAML plan file (--plan) or by flags
(--url, --prompt, --type, --form, --command). The final task tree is written
as JSON to stdout or to --output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			root, commands, err := buildRun(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.output != "" && opts.output != "-" {
				f, err := os.Create(opts.output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			runErr := executeRun(ctx, cfg, root, commands, observability.GetLogger())
			if err := writeReport(out, root); err != nil {
				return errors.Join(runErr, err)
			}
			return runErr
		},
	}

	runCmd.Flags().StringVarP(&opts.planFile, "plan", "p", "", "YAML plan file describing the run")
	runCmd.Flags().StringVar(&opts.id, "id", "", "root task ID (default is a generated one)")
	runCmd.Flags().StringVarP(&opts.url, "url", "u", "", "page the root task operates on")
	runCmd.Flags().StringVar(&opts.prompt, "prompt", "", "objective of the root task")
	runCmd.Flags().StringVarP(&opts.taskType, "type", "t", string(task.TypeNavigation), "root task type (navigation, form_fill, submit, generic)")
	runCmd.Flags().StringToStringVar(&opts.formData, "form", nil, "form field values for the root task (name=value)")
	runCmd.Flags().StringArrayVar(&opts.commands, "command", nil, "follow-up command, repeatable")
	runCmd.Flags().StringVarP(&opts.output, "output", "o", "-", "file to write the JSON task tree to")
	runCmd.Flags().Bool("headless", true, "run the browser without a window")
	runCmd.Flags().String("policy", "", "what to do with elements that cannot be resolved (skip, fail)")
	runCmd.Flags().String("provider", "", "inference provider (ollama, gemini)")
	runCmd.Flags().Bool("metrics", false, "serve Prometheus metrics while the run executes")

	runCmd.MarkFlagsMutuallyExclusive("plan", "url")
	runCmd.MarkFlagsMutuallyExclusive("plan", "prompt")
	runCmd.MarkFlagsMutuallyExclusive("plan", "command")
	runCmd.MarkFlagsMutuallyExclusive("plan", "form")
	runCmd.MarkFlagsOneRequired("plan", "url")
	return runCmd
}

// buildRun turns the flags or the plan file into a root task and its commands.
func buildRun(opts *runOptions) (*task.Task, []task.Command, error) {
	defaultID := opts.id
	if defaultID == "" {
		defaultID = "task_" + uuid.NewString()
	}

	if opts.planFile != "" {
		p, err := plan.Load(opts.planFile)
		if err != nil {
			return nil, nil, err
		}
		if opts.id != "" {
			p.ID = opts.id
		}
		root, err := p.RootTask(defaultID)
		if err != nil {
			return nil, nil, err
		}
		return root, p.Commands, nil
	}

	p := &plan.Plan{
		ID:       defaultID,
		Type:     opts.taskType,
		URL:      opts.url,
		Prompt:   opts.prompt,
		FormData: opts.formData,
	}
	for _, text := range opts.commands {
		p.Commands = append(p.Commands, task.Command{Task: text})
	}
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	root, err := p.RootTask(defaultID)
	if err != nil {
		return nil, nil, err
	}
	return root, p.Commands, nil
}

// executeRun runs the plan and, when enabled, serves metrics until the plan is done.
func executeRun(ctx context.Context, cfg *config.Config, root *task.Task, commands []task.Command, logger *zap.Logger) error {
	metrics := observability.NewMetrics(cfg.Metrics().Namespace)

	r, release, err := runnerFactory(ctx, cfg, metrics, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize run components: %w", err)
	}
	defer release()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if cfg.Metrics().Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics().Address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			logger.Info("Serving metrics.", zap.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer stopServer()
		return runPlan(runCtx, r, root, commands, logger)
	})
	return g.Wait()
}

// runPlan initializes r, runs the plan and always cleans up.
func runPlan(ctx context.Context, r runner, root *task.Task, commands []task.Command, logger *zap.Logger) (err error) {
	if err := r.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if cerr := r.Cleanup(cleanupCtx); cerr != nil {
			logger.Warn("Cleanup failed.", zap.Error(cerr))
		}
	}()

	logger.Info("Starting run.",
		zap.String("root_id", root.ID()),
		zap.String("type", string(root.Type())),
		zap.Int("commands", len(commands)),
	)
	if err := r.RunPlan(ctx, root, commands); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Run aborted gracefully", zap.String("root_id", root.ID()))
		}
		return err
	}
	logger.Info("Run completed.", zap.String("root_id", root.ID()))
	return nil
}

// newRunner wires the production orchestrator. The journal is only attached
// when a database URL is configured.
func newRunner(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (runner, func(), error) {
	inference, err := llmclient.NewClient(ctx, cfg.Inference(), logger, metrics)
	if err != nil {
		return nil, nil, err
	}
	gradio, err := perception.NewGradioClient(cfg.Perception(), logger, metrics)
	if err != nil {
		return nil, nil, err
	}

	deps := orchestrator.Dependencies{
		Inference:  inference,
		Perception: gradio,
		Launch: func(ctx context.Context) (schemas.Browser, error) {
			b, err := browser.Launch(ctx, cfg.Browser(), cfg.Network(), logger)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
		Metrics: metrics,
	}

	release := func() {}
	if url := cfg.Database().URL; url != "" {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		journal := store.New(pool, logger)
		if err := journal.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		deps.Journal = journal
		release = pool.Close
	}

	orch, err := orchestrator.New(cfg, deps, logger)
	if err != nil {
		release()
		return nil, nil, err
	}
	return orch, release, nil
}

// -- Report --

// taskReport is the JSON rendering of a task and its subtree.
type taskReport struct {
	task.Snapshot
	Subtasks []taskReport `json:"subtasks,omitempty"`
}

func newTaskReport(t *task.Task) taskReport {
	r := taskReport{Snapshot: t.Snapshot()}
	for _, sub := range t.Subtasks() {
		r.Subtasks = append(r.Subtasks, newTaskReport(sub))
	}
	return r
}

func writeReport(w io.Writer, root *task.Task) error {
	data, err := json.MarshalIndent(newTaskReport(root), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode task report: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write task report: %w", err)
	}
	return nil
}
