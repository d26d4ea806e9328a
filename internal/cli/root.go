// Package cli provides the command-line interface for buspulse.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rotalabs/buspulse/internal/cli/commands"
	"github.com/rotalabs/buspulse/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "buspulse",
		Short: "Buspulse - bus-ticket marketplace analytics pipeline",
		Long: `Buspulse clusters bus-ticket customers by purchase behavior, profiles
each segment's engagement, ranks peak purchase hours, and recommends
small carriers on high-demand routes.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: level,
			}))

			ctx := commands.WithConfig(cmd.Context(), cfg)
			ctx = commands.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./buspulse.yaml)")
	flags.String("state-path", "", "Path to the run-history database")
	flags.BoolP("verbose", "v", false, "Verbose output")
	flags.Int("clusters", 0, "Number of customer segments to learn")
	flags.Int64("seed", 0, "Random seed for training")
	flags.Int("chunk-size", 0, "Rows per chunk for streamed reads")
	flags.Int("sample-limit", 0, "Training sample size cap")
	flags.Float64("heavy-pct", 0, "Heavy-user share cutoff (top quantile)")
	flags.Float64("small-share", 0, "Max route share for a small carrier")
	flags.Int("top-hours", 0, "Peak hours retained per cluster")
	flags.Int("top-routes", 0, "Routes retained per peak cluster-hour")
	flags.Int("top-values", 0, "Entries per profile frequency table")

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewLoadCommand())
	rootCmd.AddCommand(commands.NewTrainCommand())
	rootCmd.AddCommand(commands.NewProfileCommand())
	rootCmd.AddCommand(commands.NewPeaksCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
