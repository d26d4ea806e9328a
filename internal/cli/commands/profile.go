package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rotalabs/buspulse/internal/model"
	"github.com/rotalabs/buspulse/internal/pipeline"
)

// NewProfileCommand creates the profile command.
func NewProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Build engagement profiles for each customer segment",
		Long: `Aggregate the enriched table into one profile per cluster: spend and
ticket averages, engagement tier mix, top origins, destinations and
carriers, and a plain-language narrative. Profiles replace the
cluster-profiles table.

Requires an enriched table; run "buspulse train" first.`,
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
			profiles, err := p.Profile(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Cluster", "Customers", "Mean GMV", "Mean Tickets", "High", "Med", "Low", "Top Route"})
			for _, pr := range profiles {
				t.AppendRow(table.Row{
					pr.Cluster,
					pr.Customers,
					fmt.Sprintf("%.2f", pr.MeanGMV),
					fmt.Sprintf("%.2f", pr.MeanTickets),
					fmt.Sprintf("%.0f%%", pr.PctHigh*100),
					fmt.Sprintf("%.0f%%", pr.PctMedium*100),
					fmt.Sprintf("%.0f%%", pr.PctLow*100),
					topRoute(pr),
				})
			}
			t.Render()

			for _, pr := range profiles {
				fmt.Fprintf(out, "  [%d] %s\n", pr.Cluster, pr.Narrative)
			}
			return nil
		},
	}
}

func topRoute(pr model.ClusterProfile) string {
	var parts [2]string
	if len(pr.TopOrigins) > 0 {
		parts[0] = pr.TopOrigins[0].Value
	}
	if len(pr.TopDestinations) > 0 {
		parts[1] = pr.TopDestinations[0].Value
	}
	if parts[0] == "" && parts[1] == "" {
		return ""
	}
	return strings.TrimSpace(parts[0] + " → " + parts[1])
}
