package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rotalabs/buspulse/internal/config"
	"github.com/rotalabs/buspulse/internal/pipeline"
	"github.com/rotalabs/buspulse/internal/state"
	"github.com/rotalabs/buspulse/pkg/adapter"

	// Register the bundled adapters.
	_ "github.com/rotalabs/buspulse/pkg/adapters/duckdb"
	_ "github.com/rotalabs/buspulse/pkg/adapters/postgres"
)

// openAdapter connects to the configured target.
func openAdapter(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (adapter.Adapter, error) {
	db, err := adapter.New(cfg.Target.AdapterConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(cmd.Context(), cfg.Target.AdapterConfig()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s target: %w", cfg.Target.Type, err)
	}
	return db, nil
}

// openStore opens the run-history database.
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	return store, nil
}

// countRows returns the row count of a table.
func countRows(cmd *cobra.Command, db adapter.Adapter, tableName string) (int64, error) {
	rows, err := db.Query(cmd.Context(), fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName))
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// pipelineConfig maps the loaded configuration onto pipeline options.
func pipelineConfig(cfg *config.Config, logger *slog.Logger) pipeline.Config {
	return pipeline.Config{
		Clusters:    cfg.Pipeline.Clusters,
		Seed:        cfg.Pipeline.Seed,
		ChunkSize:   cfg.Pipeline.ChunkSize,
		SampleLimit: cfg.Pipeline.SampleLimit,
		HeavyPct:    cfg.Pipeline.HeavyPct,
		SmallShare:  cfg.Pipeline.SmallShare,
		TopHours:    cfg.Pipeline.TopHours,
		TopRoutes:   cfg.Pipeline.TopRoutes,
		TopValues:   cfg.Pipeline.TopValues,
		Tables: pipeline.TableNames{
			Source:          cfg.Tables.Source,
			Enriched:        cfg.Tables.Enriched,
			Profiles:        cfg.Tables.Profiles,
			Peaks:           cfg.Tables.Peaks,
			Recommendations: cfg.Tables.Recommendations,
		},
		Logger: logger,
	}
}
