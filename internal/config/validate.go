package config

import (
	"fmt"
	"strings"

	"github.com/rotalabs/buspulse/pkg/adapter"
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Target == nil || c.Target.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(c.Target.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      c.Target.Type,
			Available: adapter.List(),
		}
	}

	p := c.Pipeline
	if p.Clusters < 1 {
		return fmt.Errorf("pipeline.clusters must be at least 1, got %d", p.Clusters)
	}
	if p.ChunkSize < 1 {
		return fmt.Errorf("pipeline.chunk_size must be at least 1, got %d", p.ChunkSize)
	}
	if p.HeavyPct <= 0 || p.HeavyPct >= 1 {
		return fmt.Errorf("pipeline.heavy_pct must be between 0 and 1 exclusive, got %g", p.HeavyPct)
	}
	if p.SmallShare < 0 || p.SmallShare > 1 {
		return fmt.Errorf("pipeline.small_share must be between 0 and 1, got %g", p.SmallShare)
	}
	if p.TopHours < 1 || p.TopRoutes < 1 || p.TopValues < 1 {
		return fmt.Errorf("pipeline top-N settings must be at least 1")
	}
	return nil
}
