package segment

import (
	"gonum.org/v1/gonum/stat"

	"github.com/rotalabs/buspulse/internal/model"
)

// Scaler standardizes feature vectors to zero mean and unit variance per
// feature, using the statistics of the sample it was fitted on.
type Scaler struct {
	Mean [model.NumFeatures]float64
	Std  [model.NumFeatures]float64
}

// fitScaler computes per-feature mean and population standard deviation.
func fitScaler(vectors [][model.NumFeatures]float64) Scaler {
	var s Scaler
	col := make([]float64, len(vectors))
	for j := 0; j < model.NumFeatures; j++ {
		for i, v := range vectors {
			col[i] = v[j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		s.Std[j] = stat.PopStdDev(col, nil)
	}
	return s
}

// Transform standardizes a single vector. A constant feature (zero standard
// deviation) maps to 0 rather than dividing by zero.
func (s Scaler) Transform(v [model.NumFeatures]float64) [model.NumFeatures]float64 {
	var out [model.NumFeatures]float64
	for j := 0; j < model.NumFeatures; j++ {
		if s.Std[j] == 0 {
			out[j] = 0
			continue
		}
		out[j] = (v[j] - s.Mean[j]) / s.Std[j]
	}
	return out
}
