package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "buspulse.yaml"

// ConfigFileNameAlt is the alternate config file name.
const ConfigFileNameAlt = "buspulse.yml"

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "BUSPULSE_"

// Default configuration values.
const (
	DefaultStatePath = "buspulse.db"
)

// findConfigFile resolves the config file to use.
// Priority: explicit path > buspulse.yaml > buspulse.yml.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load loads configuration from file, environment variables and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults.
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"verbose":                DefaultVerbose,
		"state_path":             DefaultStatePath,
		"target.type":            DefaultTargetType,
		"tables.source":          DefaultSourceTable,
		"tables.enriched":        DefaultEnrichedTable,
		"tables.profiles":        DefaultProfilesTable,
		"tables.peaks":           DefaultPeaksTable,
		"tables.recommendations": DefaultRecommendationsTable,
		"pipeline.clusters":      DefaultClusters,
		"pipeline.seed":          DefaultSeed,
		"pipeline.chunk_size":    DefaultChunkSize,
		"pipeline.sample_limit":  DefaultSampleLimit,
		"pipeline.heavy_pct":     DefaultHeavyPct,
		"pipeline.small_share":   DefaultSmallShare,
		"pipeline.top_hours":     DefaultTopHours,
		"pipeline.top_routes":    DefaultTopRoutes,
		"pipeline.top_values":    DefaultTopValues,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file.
	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. Environment variables. BUSPULSE_STATE_PATH maps to state_path and
	// a double underscore nests: BUSPULSE_TARGET__HOST maps to target.host.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags override everything. Kebab-case flag names map to the
	// snake_case config keys under pipeline where they belong.
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, ok := pipelineFlagKeys[key]; ok {
				key = "pipeline." + key
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	applyTargetDefaults(cfg.Target)
	expandTargetEnvVars(cfg.Target)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// pipelineFlagKeys are the flag names that live under the pipeline config
// section.
var pipelineFlagKeys = map[string]struct{}{
	"clusters":     {},
	"seed":         {},
	"chunk_size":   {},
	"sample_limit": {},
	"heavy_pct":    {},
	"small_share":  {},
	"top_hours":    {},
	"top_routes":   {},
	"top_values":   {},
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val := os.Getenv(name); val != "" {
			return val
		}
		return match
	})
}

// expandTargetEnvVars expands environment variables in credential fields so
// secrets can stay out of the config file.
func expandTargetEnvVars(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Host = expandEnvVars(t.Host)
	t.User = expandEnvVars(t.User)
	t.Password = expandEnvVars(t.Password)
	t.Database = expandEnvVars(t.Database)
}
