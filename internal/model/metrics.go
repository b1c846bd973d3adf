package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// BinaryMetrics evaluates a classifier on the test cutoffs
type BinaryMetrics struct {
	ROCAUC    float64 `json:"roc_auc"`
	PRAUC     float64 `json:"pr_auc"`
	Rows      int     `json:"rows"`
	Positives int     `json:"positives"`
}

// RegressionMetrics evaluates the revenue model on test spenders
type RegressionMetrics struct {
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
	Rows int     `json:"rows"`
}

// Evaluation groups the metrics of every model in a bundle
type Evaluation struct {
	Churn   BinaryMetrics     `json:"churn"`
	Spend   BinaryMetrics     `json:"spend"`
	Revenue RegressionMetrics `json:"revenue"`
}

// neutralAUC is reported when a test partition cannot rank anything
const neutralAUC = 0.5

// EvaluateBinary computes ROC-AUC and average precision. An empty or
// single-class partition yields neutral values.
func EvaluateBinary(y []int, probs []float64) BinaryMetrics {
	m := BinaryMetrics{Rows: len(y)}
	for _, v := range y {
		m.Positives += v
	}
	if m.Positives == 0 || m.Positives == len(y) {
		m.ROCAUC, m.PRAUC = neutralAUC, neutralAUC
		return m
	}
	m.ROCAUC = ROCAUC(y, probs)
	m.PRAUC = AveragePrecision(y, probs)
	return m
}

// ROCAUC integrates the ROC curve with the trapezoidal rule
func ROCAUC(y []int, probs []float64) float64 {
	type pair struct {
		p   float64
		pos bool
	}
	pairs := make([]pair, len(y))
	for i := range y {
		pairs[i] = pair{probs[i], y[i] == 1}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].p < pairs[j].p })

	scores := make([]float64, len(pairs))
	classes := make([]bool, len(pairs))
	for i, p := range pairs {
		scores[i], classes[i] = p.p, p.pos
	}

	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	auc := integrate.Trapezoidal(fpr, tpr)
	if math.IsNaN(auc) {
		return neutralAUC
	}
	return auc
}

// AveragePrecision is sum over thresholds of (R_k - R_{k-1}) * P_k
func AveragePrecision(y []int, probs []float64) float64 {
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	totalPos := 0
	for _, v := range y {
		totalPos += v
	}
	if totalPos == 0 {
		return neutralAUC
	}

	ap, tp, seen, prevRecall := 0.0, 0, 0, 0.0
	for k := 0; k < len(idx); {
		// tied scores share one threshold
		j := k
		for j < len(idx) && probs[idx[j]] == probs[idx[k]] {
			tp += y[idx[j]]
			seen++
			j++
		}
		recall := float64(tp) / float64(totalPos)
		precision := float64(tp) / float64(seen)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
		k = j
	}
	return ap
}

// EvaluateRegression computes MAE and R^2. An empty partition yields zeros.
func EvaluateRegression(actual, predicted []float64) RegressionMetrics {
	m := RegressionMetrics{Rows: len(actual)}
	if len(actual) == 0 {
		return m
	}
	for i := range actual {
		m.MAE += math.Abs(actual[i] - predicted[i])
	}
	m.MAE /= float64(len(actual))

	if len(actual) > 1 {
		r2 := stat.RSquaredFrom(predicted, actual, nil)
		if !math.IsNaN(r2) && !math.IsInf(r2, 0) {
			m.R2 = r2
		}
	}
	return m
}
