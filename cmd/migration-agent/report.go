package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kubev2v/esxi-migration-agent/internal/config"
	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/services"
	"github.com/kubev2v/esxi-migration-agent/pkg/report"
)

func newReportCommand(cfg *config.Configuration) *cobra.Command {
	var (
		runID  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the xlsx report of a migration run (latest by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newAgent(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			var run *models.MigrationResult
			if runID != "" {
				id, err := uuid.Parse(runID)
				if err != nil {
					return fmt.Errorf("invalid run id: %w", err)
				}
				if run, err = a.runs.Get(ctx, id); err != nil {
					return err
				}
			} else {
				latest, err := a.runs.List(ctx, services.RunListParams{Limit: 1})
				if err != nil {
					return err
				}
				if len(latest.Runs) == 0 {
					return errors.New("no migration run recorded yet")
				}
				// summaries carry no items
				if run, err = a.runs.Get(ctx, latest.Runs[0].ID); err != nil {
					return err
				}
			}

			if output == "" {
				output = report.FileName(*run)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := report.Write(f, *run); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Report of run %s written to %s\n", run.ID, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run id")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}
