package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rotalabs/buspulse/internal/pipeline"
)

// NewPeaksCommand creates the peaks command.
func NewPeaksCommand() *cobra.Command {
	var showShares bool

	cmd := &cobra.Command{
		Use:   "peaks",
		Short: "Rank peak purchase hours and recommend small carriers",
		Long: `Score each cluster's purchase hours by heavy-user-weighted demand,
keep the top hours, and recommend small carriers on the busiest routes
within those hours. Results replace the peak-hours and recommendations
tables.

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
			res, err := p.Peaks(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Cluster", "Hour", "Rank", "Purchases", "Tickets", "Heavy", "Score"})
			for _, ph := range res.Peaks {
				t.AppendRow(table.Row{
					ph.Cluster,
					fmt.Sprintf("%02dh", ph.Hour),
					ph.Rank,
					ph.Purchases,
					fmt.Sprintf("%.0f", ph.Tickets),
					fmt.Sprintf("%.0f%%", ph.HeavyRatio*100),
					fmt.Sprintf("%.1f", ph.Score),
				})
			}
			t.Render()

			if showShares {
				s := table.NewWriter()
				s.SetOutputMirror(out)
				s.SetStyle(table.StyleLight)
				s.AppendHeader(table.Row{"Origin", "Destination", "Carrier", "Share", "Small"})
				for _, rs := range res.RouteShares {
					s.AppendRow(table.Row{
						rs.OriginCity,
						rs.DestCity,
						rs.Carrier,
						fmt.Sprintf("%.1f%%", rs.Share*100),
						rs.Small,
					})
				}
				s.Render()
			}

			if len(res.Opportunities) == 0 {
				fmt.Fprintln(out, "No small-carrier opportunities found")
				return nil
			}
			fmt.Fprintf(out, "%d small-carrier opportunities:\n", len(res.Opportunities))
			for _, op := range res.Opportunities {
				fmt.Fprintf(out, "  %s\n", op.Recommendation)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showShares, "shares", false, "Also print per-route carrier market shares")

	return cmd
}
