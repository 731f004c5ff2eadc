// File: cmd/models.go
package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/pilot-cli/internal/llmclient"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
)

// inferenceFactory builds the inference gateway for the models command. Tests swap it out.
var inferenceFactory = llmclient.NewClient

func newModelsCmd() *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Lists the models of the inference service and checks the configured ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			inference, err := inferenceFactory(ctx, cfg.Inference(), logger, nil)
			if err != nil {
				return fmt.Errorf("failed to create inference client: %w", err)
			}

			models, err := inference.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("failed to list models: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
			for _, m := range models {
				modified := "-"
				if !m.ModifiedAt.IsZero() {
					modified = m.ModifiedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, formatSize(m.Size), modified)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			var missing []string
			fmt.Fprintln(cmd.OutOrStdout())
			for _, role := range []struct{ name, model string }{
				{"vision", cfg.Inference().VisionModel},
				{"language", cfg.Inference().LanguageModel},
			} {
				status := "available"
				if !inference.CheckModelStatus(ctx, role.model) {
					status = "missing"
					missing = append(missing, role.model)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s model %s: %s\n", role.name, role.model, status)
			}
			if len(missing) > 0 {
				return fmt.Errorf("configured models not available: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
	modelsCmd.Flags().String("provider", "", "inference provider (ollama, gemini)")
	return modelsCmd
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
