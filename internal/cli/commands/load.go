package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rotalabs/buspulse/internal/pipeline"
)

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <csv-file>",
		Short: "Load transactions from a CSV file into the source table",
		Long: `Bulk-load a header-row CSV of ticket transactions into the configured
source table, replacing its current contents.`,
		Example: `  buspulse load transactions.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd.Context())
			logger := loggerFrom(cmd.Context())

			db, err := openAdapter(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			p := pipeline.New(db, nil, pipelineConfig(cfg, logger))
			if err := p.LoadCSV(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to load %s: %w", args[0], err)
			}

			n, err := countRows(cmd, db, cfg.Tables.Source)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d transactions into %s\n",
				n, cfg.Tables.Source)
			return nil
		},
	}
}
