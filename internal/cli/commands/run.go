package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rotalabs/buspulse/internal/pipeline"
	"github.com/rotalabs/buspulse/internal/state"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full analytics pipeline",
		Long: `Execute every pipeline stage in order: train the segmentation model,
propagate cluster labels into the enriched table, build engagement
profiles, and rank peak hours with carrier recommendations.

Each run is recorded in the local run-history database.`,
		Example: `  # Run against the configured target
  buspulse run

  # Run with a smaller segment count
  buspulse run --clusters 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd.Context())
			logger := loggerFrom(cmd.Context())

			db, err := openAdapter(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			p := pipeline.New(db, store, pipelineConfig(cfg, logger))

			start := time.Now()
			runID, runErr := p.Run(cmd.Context())

			if runID != "" {
				if run, err := store.GetRun(runID); err == nil {
					printRunSummary(cmd, run)
				}
			}
			if runErr != nil {
				return fmt.Errorf("pipeline run failed: %w", runErr)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Completed in %s\n",
				time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func printRunSummary(cmd *cobra.Command, run *state.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %s\n", run.ID, run.Status)
	if run.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", run.Error)
	}
	if len(run.Stages) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Stage", "Rows", "Duration"})
	for _, s := range run.Stages {
		t.AppendRow(table.Row{s.Stage, s.RowsWritten, s.Duration.Round(time.Millisecond)})
	}
	t.Render()
}
