package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotalabs/buspulse/pkg/adapter"
	_ "github.com/rotalabs/buspulse/pkg/adapters/duckdb"
	_ "github.com/rotalabs/buspulse/pkg/adapters/postgres"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buspulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "duckdb", cfg.Target.Type)
	assert.Equal(t, "main", cfg.Target.Schema)
	assert.Equal(t, "buspulse.db", cfg.StatePath)
	assert.Equal(t, "transactions", cfg.Tables.Source)
	assert.Equal(t, "enriched_transactions", cfg.Tables.Enriched)
	assert.Equal(t, 8, cfg.Pipeline.Clusters)
	assert.Equal(t, int64(42), cfg.Pipeline.Seed)
	assert.Equal(t, 100000, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 200000, cfg.Pipeline.SampleLimit)
	assert.InDelta(t, 0.20, cfg.Pipeline.HeavyPct, 1e-9)
	assert.InDelta(t, 0.10, cfg.Pipeline.SmallShare, 1e-9)
	assert.Equal(t, 5, cfg.Pipeline.TopHours)
	assert.Equal(t, 5, cfg.Pipeline.TopRoutes)
	assert.Equal(t, 5, cfg.Pipeline.TopValues)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
target:
  type: postgres
  host: warehouse.internal
  user: analytics
  database: dw
tables:
  source: raw_sales
pipeline:
  clusters: 6
  heavy_pct: 0.25
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Target.Type)
	assert.Equal(t, "warehouse.internal", cfg.Target.Host)
	assert.Equal(t, 5432, cfg.Target.Port)
	assert.Equal(t, "public", cfg.Target.Schema)
	assert.Equal(t, "raw_sales", cfg.Tables.Source)
	assert.Equal(t, 6, cfg.Pipeline.Clusters)
	assert.InDelta(t, 0.25, cfg.Pipeline.HeavyPct, 1e-9)
	// Untouched keys keep their defaults.
	assert.Equal(t, "enriched_transactions", cfg.Tables.Enriched)
	assert.Equal(t, 5, cfg.Pipeline.TopHours)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BUSPULSE_STATE_PATH", "/var/lib/buspulse/state.db")
	t.Setenv("BUSPULSE_PIPELINE__CLUSTERS", "3")
	t.Setenv("BUSPULSE_TARGET__TYPE", "postgres")
	t.Setenv("BUSPULSE_TARGET__HOST", "db.example.com")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/buspulse/state.db", cfg.StatePath)
	assert.Equal(t, 3, cfg.Pipeline.Clusters)
	assert.Equal(t, "postgres", cfg.Target.Type)
	assert.Equal(t, "db.example.com", cfg.Target.Host)
}

func TestLoad_FlagsWinOverFileAndEnv(t *testing.T) {
	t.Setenv("BUSPULSE_PIPELINE__CLUSTERS", "3")
	path := writeConfig(t, "pipeline:\n  clusters: 6\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("clusters", 0, "")
	flags.Float64("heavy-pct", 0, "")
	require.NoError(t, flags.Parse([]string{"--clusters", "12", "--heavy-pct", "0.5"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Pipeline.Clusters)
	assert.InDelta(t, 0.5, cfg.Pipeline.HeavyPct, 1e-9)
}

func TestLoad_ExpandsCredentialEnvVars(t *testing.T) {
	t.Setenv("DW_PASSWORD", "hunter2")
	path := writeConfig(t, `
target:
  type: postgres
  host: db
  password: ${DW_PASSWORD}
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Target.Password)
}

func TestLoad_UnknownTargetType(t *testing.T) {
	path := writeConfig(t, "target:\n  type: oracle\n")

	_, err := Load(path, nil)
	require.Error(t, err)
	var unknownErr *adapter.UnknownAdapterError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Target: &TargetConfig{Type: "duckdb"},
			Pipeline: PipelineConfig{
				Clusters: 8, ChunkSize: 1000, HeavyPct: 0.2, SmallShare: 0.1,
				TopHours: 5, TopRoutes: 5, TopValues: 5,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing target", func(c *Config) { c.Target = nil }, "target type is required"},
		{"zero clusters", func(c *Config) { c.Pipeline.Clusters = 0 }, "clusters"},
		{"zero chunk size", func(c *Config) { c.Pipeline.ChunkSize = 0 }, "chunk_size"},
		{"heavy pct too high", func(c *Config) { c.Pipeline.HeavyPct = 1 }, "heavy_pct"},
		{"negative small share", func(c *Config) { c.Pipeline.SmallShare = -0.1 }, "small_share"},
		{"zero top hours", func(c *Config) { c.Pipeline.TopHours = 0 }, "top-N"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
