package config

// Default values for every tunable.
const (
	DefaultVerbose    = false
	DefaultTargetType = "duckdb"

	DefaultSourceTable          = "transactions"
	DefaultEnrichedTable        = "enriched_transactions"
	DefaultProfilesTable        = "cluster_profiles"
	DefaultPeaksTable           = "peak_hours"
	DefaultRecommendationsTable = "recommendations"

	DefaultClusters    = 8
	DefaultSeed        = 42
	DefaultChunkSize   = 100000
	DefaultSampleLimit = 200000
	DefaultHeavyPct    = 0.20
	DefaultSmallShare  = 0.10
	DefaultTopHours    = 5
	DefaultTopRoutes   = 5
	DefaultTopValues   = 5
)

// applyTargetDefaults fills type-specific target defaults.
func applyTargetDefaults(t *TargetConfig) {
	if t == nil {
		return
	}
	if t.Type == "postgres" {
		if t.Port == 0 {
			t.Port = 5432
		}
		if t.Schema == "" {
			t.Schema = "public"
		}
	}
	if t.Type == "duckdb" && t.Schema == "" {
		t.Schema = "main"
	}
}
