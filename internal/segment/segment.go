// Package segment fits a standardizing scaler plus a mini-batch k-means model
// on a sampled customer population and assigns every customer to its nearest
// learned centroid. Fitting returns an immutable Model value; Predict is a
// method on that value, so scoring an unfitted model is unrepresentable.
package segment

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/rotalabs/buspulse/internal/model"
)

// Algorithm is the model identifier stamped on enriched rows.
const Algorithm = "minibatch-kmeans"

// Defaults for the fitting configuration.
const (
	DefaultClusters      = 8
	DefaultSeed          = 42
	DefaultBatchSize     = 10000
	defaultMaxIterations = 100
	defaultTolerance     = 1e-4
)

// Config holds fitting parameters.
type Config struct {
	// Clusters is the number of segments to learn.
	Clusters int

	// Seed fixes the random source so fitting is reproducible.
	Seed int64

	// BatchSize is the mini-batch size for incremental centroid updates.
	BatchSize int

	// MaxIterations bounds the number of mini-batch update rounds.
	MaxIterations int

	// Tolerance stops fitting early when no centroid moved further than
	// this between rounds.
	Tolerance float64

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Clusters == 0 {
		c.Clusters = DefaultClusters
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = defaultMaxIterations
	}
	if c.Tolerance == 0 {
		c.Tolerance = defaultTolerance
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Model is a fitted scaler plus learned centroids. Values are immutable after
// Fit; retraining produces a new Model and may relabel clusters arbitrarily.
type Model struct {
	Scaler    Scaler
	Centroids [][model.NumFeatures]float64
	Clusters  int
	Seed      int64
}

// Sample returns a uniform random sample of at most limit feature vectors,
// deterministic for a given seed. The input is not modified.
func Sample(feats []model.CustomerFeatures, limit int, seed int64) []model.CustomerFeatures {
	if limit <= 0 || len(feats) <= limit {
		out := make([]model.CustomerFeatures, len(feats))
		copy(out, feats)
		return out
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(feats))
	out := make([]model.CustomerFeatures, limit)
	for i := 0; i < limit; i++ {
		out[i] = feats[perm[i]]
	}
	return out
}

// Fit standardizes the sample and learns cluster centroids with mini-batch
// k-means.
func Fit(sample []model.CustomerFeatures, cfg Config) (*Model, error) {
	cfg.applyDefaults()

	if len(sample) == 0 {
		return nil, fmt.Errorf("cannot fit segmentation model on an empty sample")
	}
	if cfg.Clusters < 1 {
		return nil, fmt.Errorf("cluster count must be positive, got %d", cfg.Clusters)
	}
	if len(sample) < cfg.Clusters {
		return nil, fmt.Errorf("training sample has %d customers, need at least %d", len(sample), cfg.Clusters)
	}

	vectors := make([][model.NumFeatures]float64, len(sample))
	for i, f := range sample {
		vectors[i] = f.Vector()
	}

	scaler := fitScaler(vectors)
	for i := range vectors {
		vectors[i] = scaler.Transform(vectors[i])
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	centroids := seedCentroids(vectors, cfg.Clusters, rng)

	counts := make([]int, cfg.Clusters)
	batch := cfg.BatchSize
	if batch > len(vectors) {
		batch = len(vectors)
	}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		var moved float64
		for b := 0; b < batch; b++ {
			x := vectors[rng.Intn(len(vectors))]
			c := nearest(centroids, x)

			// Per-centroid learning rate 1/count keeps updates an
			// incremental mean of the points assigned so far.
			counts[c]++
			eta := 1 / float64(counts[c])
			var shift float64
			for j := 0; j < model.NumFeatures; j++ {
				delta := eta * (x[j] - centroids[c][j])
				centroids[c][j] += delta
				shift += delta * delta
			}
			if shift > moved {
				moved = shift
			}
		}
		if moved < cfg.Tolerance*cfg.Tolerance {
			cfg.Logger.Debug("kmeans converged", slog.Int("iteration", iter))
			break
		}
	}

	cfg.Logger.Info("segmentation model fitted",
		slog.Int("clusters", cfg.Clusters),
		slog.Int("sample", len(sample)))

	return &Model{
		Scaler:    scaler,
		Centroids: centroids,
		Clusters:  cfg.Clusters,
		Seed:      cfg.Seed,
	}, nil
}

// Predict assigns every customer to its nearest centroid. Deterministic for a
// given fitted model; centroid index ties go to the lowest label.
func (m *Model) Predict(feats []model.CustomerFeatures) map[string]int {
	out := make(map[string]int, len(feats))
	for _, f := range feats {
		out[f.CustomerID] = nearest(m.Centroids, m.Scaler.Transform(f.Vector()))
	}
	return out
}

// seedCentroids picks initial centroids k-means++ style: the first uniformly
// at random, each following one proportional to its squared distance from the
// nearest centroid chosen so far. Spreads the seeds across the sample so
// well-separated groups each attract a centroid.
func seedCentroids(vectors [][model.NumFeatures]float64, k int, rng *rand.Rand) [][model.NumFeatures]float64 {
	centroids := make([][model.NumFeatures]float64, 0, k)
	centroids = append(centroids, vectors[rng.Intn(len(vectors))])

	dists := make([]float64, len(vectors))
	for len(centroids) < k {
		var total float64
		last := centroids[len(centroids)-1]
		for i, v := range vectors {
			d := sqDist(last, v)
			if len(centroids) == 1 || d < dists[i] {
				dists[i] = d
			}
			total += dists[i]
		}

		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, vectors[rng.Intn(len(vectors))])
			continue
		}

		target := rng.Float64() * total
		idx := len(vectors) - 1
		for i, d := range dists {
			target -= d
			if target <= 0 {
				idx = i
				break
			}
		}
		centroids = append(centroids, vectors[idx])
	}
	return centroids
}

// nearest returns the index of the centroid closest to x by squared euclidean
// distance.
func nearest(centroids [][model.NumFeatures]float64, x [model.NumFeatures]float64) int {
	best := 0
	bestDist := sqDist(centroids[0], x)
	for c := 1; c < len(centroids); c++ {
		if d := sqDist(centroids[c], x); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func sqDist(a, b [model.NumFeatures]float64) float64 {
	var sum float64
	for j := 0; j < model.NumFeatures; j++ {
		d := a[j] - b[j]
		sum += d * d
	}
	return sum
}
