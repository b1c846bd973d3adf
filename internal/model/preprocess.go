package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MedianImputer replaces NaN with the per-column training median
type MedianImputer struct {
	Medians []float64 `json:"medians"`
}

// FitImputer learns column medians, ignoring NaN. An all-NaN column gets 0.
func FitImputer(X [][]float64, nCols int) *MedianImputer {
	m := &MedianImputer{Medians: make([]float64, nCols)}
	col := make([]float64, 0, len(X))
	for j := 0; j < nCols; j++ {
		col = col[:0]
		for _, x := range X {
			if !math.IsNaN(x[j]) {
				col = append(col, x[j])
			}
		}
		m.Medians[j] = median(col)
	}
	return m
}

// Transform returns an imputed copy of X
func (m *MedianImputer) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		row := make([]float64, len(x))
		for j, v := range x {
			if math.IsNaN(v) {
				v = m.Medians[j]
			}
			row[j] = v
		}
		out[i] = row
	}
	return out
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// StandardScaler centres columns and scales them to unit population variance
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler learns column means and standard deviations.
// Constant columns keep scale 1.
func FitScaler(X [][]float64, nCols int) *StandardScaler {
	s := &StandardScaler{Mean: make([]float64, nCols), Scale: make([]float64, nCols)}
	col := make([]float64, len(X))
	for j := 0; j < nCols; j++ {
		for i, x := range X {
			col[i] = x[j]
		}
		mean, std := 0.0, 1.0
		if len(col) > 0 {
			mean, std = stat.PopMeanStdDev(col, nil)
		}
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s
}

// Transform returns a scaled copy of X
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		row := make([]float64, len(x))
		for j, v := range x {
			row[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = row
	}
	return out
}
