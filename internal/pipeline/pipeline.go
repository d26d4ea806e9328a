// Package pipeline orchestrates the five batch stages against a relational
// store: feature building, segmentation training, cluster propagation,
// engagement profiling, and peak-hour opportunity analysis.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rotalabs/buspulse/internal/features"
	"github.com/rotalabs/buspulse/internal/model"
	"github.com/rotalabs/buspulse/internal/peaks"
	"github.com/rotalabs/buspulse/internal/profile"
	"github.com/rotalabs/buspulse/internal/segment"
	"github.com/rotalabs/buspulse/internal/state"
	"github.com/rotalabs/buspulse/pkg/adapter"
)

// Pipeline defaults.
const (
	DefaultChunkSize   = 100000
	DefaultSampleLimit = 200000
)

// TableNames holds the source and destination table names.
type TableNames struct {
	Source          string
	Enriched        string
	Profiles        string
	Peaks           string
	Recommendations string
}

func (t *TableNames) applyDefaults() {
	if t.Source == "" {
		t.Source = "transactions"
	}
	if t.Enriched == "" {
		t.Enriched = "enriched_transactions"
	}
	if t.Profiles == "" {
		t.Profiles = "cluster_profiles"
	}
	if t.Peaks == "" {
		t.Peaks = "peak_hours"
	}
	if t.Recommendations == "" {
		t.Recommendations = "recommendations"
	}
}

// Config holds pipeline tunables. Zero values take the documented defaults.
type Config struct {
	Clusters    int
	Seed        int64
	ChunkSize   int
	SampleLimit int
	HeavyPct    float64
	SmallShare  float64
	TopHours    int
	TopRoutes   int
	TopValues   int
	Tables      TableNames
	Logger      *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.SampleLimit == 0 {
		c.SampleLimit = DefaultSampleLimit
	}
	if c.Seed == 0 {
		c.Seed = segment.DefaultSeed
	}
	c.Tables.applyDefaults()
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Pipeline executes the batch stages against one adapter. Runs are
// single-threaded; reruns assume exclusive access to the destination tables
// since every stage replaces its output wholesale.
type Pipeline struct {
	db     adapter.Adapter
	store  state.Store
	cfg    Config
	logger *slog.Logger

	fitted   *segment.Model
	features []model.CustomerFeatures
}

// New creates a pipeline on the given adapter. store may be nil to skip run
// history tracking.
func New(db adapter.Adapter, store state.Store, cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		db:     db,
		store:  store,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Model returns the fitted segmentation model, or nil before training.
func (p *Pipeline) Model() *segment.Model {
	return p.fitted
}

// Features returns the per-customer feature vectors built by the last
// training pass, or nil when the model has not been trained.
func (p *Pipeline) Features() []model.CustomerFeatures {
	return p.features
}

// LoadCSV bulk-loads a header-row CSV file into the source table.
func (p *Pipeline) LoadCSV(ctx context.Context, path string) error {
	p.logger.Info("loading csv",
		slog.String("path", path),
		slog.String("table", p.cfg.Tables.Source))
	return p.db.LoadCSV(ctx, p.cfg.Tables.Source, path)
}

// Train builds per-customer features from the source table, samples them and
// fits the segmentation model. The features are kept for propagation.
func (p *Pipeline) Train(ctx context.Context) (*segment.Model, error) {
	builder := features.NewBuilder()
	err := p.forEachTransactionChunk(ctx, func(txs []model.Transaction) error {
		builder.Add(txs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read source transactions: %w", err)
	}

	feats, err := builder.Features()
	if err != nil {
		return nil, err
	}

	sample := segment.Sample(feats, p.cfg.SampleLimit, p.cfg.Seed)
	p.logger.Info("training segmentation model",
		slog.Int("customers", len(feats)),
		slog.Int("sample", len(sample)))

	fitted, err := segment.Fit(sample, segment.Config{
		Clusters: p.cfg.Clusters,
		Seed:     p.cfg.Seed,
		Logger:   p.logger,
	})
	if err != nil {
		return nil, err
	}

	p.fitted = fitted
	p.features = feats
	return fitted, nil
}

// Profile reads the enriched set, builds per-cluster engagement profiles and
// replaces the profile table.
func (p *Pipeline) Profile(ctx context.Context) ([]model.ClusterProfile, error) {
	if err := p.checkEnrichedColumns(ctx); err != nil {
		return nil, err
	}

	txs, err := p.readEnriched(ctx)
	if err != nil {
		return nil, err
	}

	profiles, err := profile.Build(txs, profile.Config{
		TopValues: p.cfg.TopValues,
		Logger:    p.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := p.writeProfiles(ctx, profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Peaks reads the enriched set, runs the peak-hour and small-carrier
// analysis and replaces both result tables.
func (p *Pipeline) Peaks(ctx context.Context) (*peaks.Result, error) {
	if err := p.checkEnrichedColumns(ctx); err != nil {
		return nil, err
	}

	txs, err := p.readEnriched(ctx)
	if err != nil {
		return nil, err
	}

	result, err := peaks.Analyze(txs, peaks.Config{
		HeavyPct:   p.cfg.HeavyPct,
		SmallShare: p.cfg.SmallShare,
		TopHours:   p.cfg.TopHours,
		TopRoutes:  p.cfg.TopRoutes,
		Logger:     p.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := p.writePeaks(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Run executes the full pipeline: train, propagate, profile, peaks. Each
// stage outcome is recorded in the run history when a store is configured.
func (p *Pipeline) Run(ctx context.Context) (runID string, err error) {
	var run *state.Run
	if p.store != nil {
		run, err = p.store.CreateRun()
		if err != nil {
			return "", err
		}
		runID = run.ID
		defer func() {
			status := state.RunStatusCompleted
			msg := ""
			if err != nil {
				status = state.RunStatusFailed
				msg = err.Error()
			}
			if cerr := p.store.CompleteRun(run.ID, status, msg); cerr != nil {
				p.logger.Warn("failed to record run completion", slog.Any("error", cerr))
			}
		}()
	}

	err = p.stage(run, "train", func() (int64, error) {
		_, terr := p.Train(ctx)
		return 0, terr
	})
	if err != nil {
		return runID, err
	}

	err = p.stage(run, "propagate", func() (int64, error) {
		return p.Propagate(ctx)
	})
	if err != nil {
		return runID, err
	}

	err = p.stage(run, "profile", func() (int64, error) {
		profiles, perr := p.Profile(ctx)
		return int64(len(profiles)), perr
	})
	if err != nil {
		return runID, err
	}

	err = p.stage(run, "peaks", func() (int64, error) {
		res, perr := p.Peaks(ctx)
		if perr != nil {
			return 0, perr
		}
		return int64(len(res.Peaks) + len(res.Opportunities)), nil
	})
	return runID, err
}

// stage runs one pipeline stage, logging and recording its outcome.
func (p *Pipeline) stage(run *state.Run, name string, fn func() (int64, error)) error {
	start := time.Now()
	rows, err := fn()
	elapsed := time.Since(start)

	if err != nil {
		p.logger.Error("stage failed",
			slog.String("stage", name),
			slog.Any("error", err))
		return fmt.Errorf("stage %s: %w", name, err)
	}

	p.logger.Info("stage complete",
		slog.String("stage", name),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed))

	if p.store != nil && run != nil {
		if rerr := p.store.RecordStage(run.ID, name, rows, elapsed); rerr != nil {
			p.logger.Warn("failed to record stage", slog.Any("error", rerr))
		}
	}
	return nil
}

// checkEnrichedColumns verifies the enriched table carries every column the
// downstream stages read.
func (p *Pipeline) checkEnrichedColumns(ctx context.Context) error {
	meta, err := p.db.GetTableMetadata(ctx, p.cfg.Tables.Enriched)
	if err != nil {
		return fmt.Errorf("failed to inspect enriched table %s: %w", p.cfg.Tables.Enriched, err)
	}

	var missing []string
	for _, col := range enrichedRequiredColumns {
		if !meta.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("enriched table %s is missing required columns: %v", p.cfg.Tables.Enriched, missing)
	}
	return nil
}

var enrichedRequiredColumns = []string{
	"customer_id", "cluster", "gmv", "tickets", "has_return",
	"purchase_hour", "origin_city", "dest_city", "carrier", "purchase_ts",
}
