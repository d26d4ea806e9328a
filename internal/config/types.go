// Package config loads buspulse configuration from file, environment
// variables and command-line flags.
package config

import (
	"github.com/rotalabs/buspulse/pkg/adapter"
)

// TargetConfig holds the destination database configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// Path is the database file path for file-based engines. Empty means
	// in-memory.
	Path string `koanf:"path"`

	// Network databases.
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`

	Schema string `koanf:"schema"`

	// Options holds driver-specific settings (e.g. sslmode).
	Options map[string]string `koanf:"options"`
}

// AdapterConfig converts the target into the adapter connection config.
func (t *TargetConfig) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     t.Type,
		Path:     t.Path,
		Host:     t.Host,
		Port:     t.Port,
		Username: t.User,
		Password: t.Password,
		Database: t.Database,
		Schema:   t.Schema,
		Options:  t.Options,
	}
}

// TablesConfig names the source and destination tables.
type TablesConfig struct {
	Source          string `koanf:"source"`
	Enriched        string `koanf:"enriched"`
	Profiles        string `koanf:"profiles"`
	Peaks           string `koanf:"peaks"`
	Recommendations string `koanf:"recommendations"`
}

// PipelineConfig holds the analysis tunables.
type PipelineConfig struct {
	Clusters    int     `koanf:"clusters"`
	Seed        int64   `koanf:"seed"`
	ChunkSize   int     `koanf:"chunk_size"`
	SampleLimit int     `koanf:"sample_limit"`
	HeavyPct    float64 `koanf:"heavy_pct"`
	SmallShare  float64 `koanf:"small_share"`
	TopHours    int     `koanf:"top_hours"`
	TopRoutes   int     `koanf:"top_routes"`
	TopValues   int     `koanf:"top_values"`
}

// Config holds all buspulse configuration.
type Config struct {
	Verbose   bool           `koanf:"verbose"`
	StatePath string         `koanf:"state_path"`
	Target    *TargetConfig  `koanf:"target"`
	Tables    TablesConfig   `koanf:"tables"`
	Pipeline  PipelineConfig `koanf:"pipeline"`
}
