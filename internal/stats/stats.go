// Package stats provides the small set of ranking and quantile helpers the
// pipeline stages share.
package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// PercentileRanks returns, for each value, its percentile rank in [0, 1]
// within the whole slice. Ties receive the average of the ranks they span, and
// ranks are normalized so the minimum maps to 0 and the maximum to 1. A single
// value ranks 1. Rank is monotone non-decreasing in the value.
func PercentileRanks(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		out[0] = 1
		return out
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	// Average rank over runs of equal values, then scale to [0, 1].
	for i := 0; i < n; {
		j := i
		for j < n && values[idx[j]] == values[idx[i]] {
			j++
		}
		// 1-based ranks i+1..j averaged
		avg := float64(i+1+j) / 2
		pct := (avg - 1) / float64(n-1)
		for k := i; k < j; k++ {
			out[idx[k]] = pct
		}
		i = j
	}
	return out
}

// Quantile returns the p-quantile (0 <= p <= 1) of values using linear
// interpolation between the two nearest order statistics (type 7, the
// default of most statistics packages). The input is not modified.
func Quantile(p float64, values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	h := p * float64(n-1)
	lo := int(h)
	if lo < 0 {
		return sorted[0]
	}
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Median returns the 0.5-quantile of values.
func Median(values []float64) float64 {
	return Quantile(0.5, values)
}
