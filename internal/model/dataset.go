// Package model fits and evaluates the churn, spend and revenue models and
// stores them as one versioned bundle.
package model

import (
	"math"
	"slices"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
)

// FeatureSet is the frozen, ordered list of model input columns.
// Scoring must present exactly these columns in this order.
type FeatureSet struct {
	Columns []string `json:"columns"`
}

// SelectFeatures keeps every known feature column that has at least one
// non-NaN value in rows.
func SelectFeatures(rows []contracts.RollingDatasetRow) FeatureSet {
	var keep []string
	for _, col := range contracts.FeatureColumns() {
		for _, r := range rows {
			v, _ := r.Value(col)
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				keep = append(keep, col)
				break
			}
		}
	}
	return FeatureSet{Columns: keep}
}

// Matches reports whether cols equals the frozen list in membership and order
func (fs FeatureSet) Matches(cols []string) bool {
	return slices.Equal(fs.Columns, cols)
}

// Matrix projects rows onto the feature columns. Inf becomes NaN.
func (fs FeatureSet) Matrix(rows []contracts.RollingDatasetRow) [][]float64 {
	X := make([][]float64, len(rows))
	for i, r := range rows {
		x := r.Vector(fs.Columns)
		for j, v := range x {
			if math.IsInf(v, 0) {
				x[j] = math.NaN()
			}
		}
		X[i] = x
	}
	return X
}

// ChurnLabels returns churn_label per row
func ChurnLabels(rows []contracts.RollingDatasetRow) []int {
	y := make([]int, len(rows))
	for i, r := range rows {
		y[i] = r.ChurnLabel
	}
	return y
}

// SpendLabels returns 1 where the prediction window revenue is positive
func SpendLabels(rows []contracts.RollingDatasetRow) []int {
	y := make([]int, len(rows))
	for i, r := range rows {
		if r.Spent() {
			y[i] = 1
		}
	}
	return y
}

// Spenders filters rows with positive prediction window revenue
func Spenders(rows []contracts.RollingDatasetRow) []contracts.RollingDatasetRow {
	var out []contracts.RollingDatasetRow
	for _, r := range rows {
		if r.Spent() {
			out = append(out, r)
		}
	}
	return out
}

// Split is a time-ordered train/test partition
type Split struct {
	Train        []contracts.RollingDatasetRow
	Test         []contracts.RollingDatasetRow
	TrainCutoffs []time.Time
	TestCutoffs  []time.Time
}

// TimeSplit trains on the earliest ceil(0.8 * n) distinct cutoffs (at least
// one) and tests on the rest, so evaluation never sees an earlier cutoff
// than training.
func TimeSplit(rows []contracts.RollingDatasetRow) Split {
	seen := make(map[time.Time]struct{})
	var cutoffs []time.Time
	for _, r := range rows {
		if _, ok := seen[r.CutoffDate]; !ok {
			seen[r.CutoffDate] = struct{}{}
			cutoffs = append(cutoffs, r.CutoffDate)
		}
	}
	slices.SortFunc(cutoffs, func(a, b time.Time) int { return a.Compare(b) })

	n := len(cutoffs)
	nTrain := max(1, (4*n+4)/5)
	nTrain = min(nTrain, n)

	s := Split{TrainCutoffs: cutoffs[:nTrain], TestCutoffs: cutoffs[nTrain:]}
	if n == 0 {
		return s
	}
	boundary := cutoffs[nTrain-1]
	for _, r := range rows {
		if r.CutoffDate.After(boundary) {
			s.Test = append(s.Test, r)
		} else {
			s.Train = append(s.Train, r)
		}
	}
	return s
}
