package commands

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rotalabs/buspulse/internal/pipeline"
)

// NewTrainCommand creates the train command.
func NewTrainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train the segmentation model and propagate cluster labels",
		Long: `Build per-customer features from the source table, train the
mini-batch k-means segmentation model, and write the enriched table
with a cluster label on every transaction.`,
		Example: `  # Train with the configured segment count
  buspulse train

  # Explore a different segmentation
  buspulse train --clusters 4 --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd.Context())
			logger := loggerFrom(cmd.Context())

			db, err := openAdapter(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			p := pipeline.New(db, nil, pipelineConfig(cfg, logger))

			m, err := p.Train(cmd.Context())
			if err != nil {
				return err
			}
			written, err := p.Propagate(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Trained %d-cluster model (seed %d), %d rows enriched\n",
				m.Clusters, m.Seed, written)

			sizes := make(map[int]int)
			for _, label := range m.Predict(p.Features()) {
				sizes[label]++
			}
			clusters := make([]int, 0, len(sizes))
			for c := range sizes {
				clusters = append(clusters, c)
			}
			sort.Ints(clusters)

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Cluster", "Customers"})
			for _, c := range clusters {
				t.AppendRow(table.Row{c, sizes[c]})
			}
			t.Render()
			return nil
		},
	}
}
