package model

import (
	"math"
)

// GradientBoostingClassifier is a logistic-loss boosted tree ensemble
type GradientBoostingClassifier struct {
	NEstimators    int     `json:"n_estimators"`
	LearningRate   float64 `json:"learning_rate"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	Init           float64 `json:"init"`
	Trees          []*Node `json:"trees"`
}

// Fit grows NEstimators trees by Newton steps on the log loss
func (m *GradientBoostingClassifier) Fit(X [][]float64, y []int) {
	n := len(X)
	m.Trees = nil
	if n == 0 {
		m.Init = 0
		return
	}

	pos := 0
	for _, v := range y {
		pos += v
	}
	prior := clampProb(float64(pos) / float64(n))
	m.Init = math.Log(prior / (1 - prior))

	F := make([]float64, n)
	for i := range F {
		F[i] = m.Init
	}

	bins := binFeatures(X, len(X[0]))
	g := make([]float64, n)
	h := make([]float64, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	for k := 0; k < m.NEstimators; k++ {
		for i := range F {
			p := sigmoid(F[i])
			g[i] = float64(y[i]) - p
			h[i] = p * (1 - p)
		}
		grower := &treeGrower{bins: bins, g: g, h: h, maxDepth: m.MaxDepth, minLeaf: max(1, m.MinSamplesLeaf), l2: 1}
		tree := grower.grow(idx, 0)
		m.Trees = append(m.Trees, tree)
		for i, x := range X {
			F[i] += m.LearningRate * tree.Eval(x)
		}
	}
}

// Decision returns the raw log-odds score of one row
func (m *GradientBoostingClassifier) Decision(x []float64) float64 {
	f := m.Init
	for _, t := range m.Trees {
		f += m.LearningRate * t.Eval(x)
	}
	return f
}

// PredictProba returns P(y = 1) per row
func (m *GradientBoostingClassifier) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = sigmoid(m.Decision(x))
	}
	return out
}

// GradientBoostingRegressor is a squared-loss boosted tree ensemble
type GradientBoostingRegressor struct {
	NEstimators    int     `json:"n_estimators"`
	LearningRate   float64 `json:"learning_rate"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	Init           float64 `json:"init"`
	Trees          []*Node `json:"trees"`
}

// Fit grows NEstimators trees on the residuals of y
func (m *GradientBoostingRegressor) Fit(X [][]float64, y []float64) {
	n := len(X)
	m.Trees = nil
	if n == 0 {
		m.Init = 0
		return
	}

	for _, v := range y {
		m.Init += v
	}
	m.Init /= float64(n)

	F := make([]float64, n)
	for i := range F {
		F[i] = m.Init
	}

	bins := binFeatures(X, len(X[0]))
	g := make([]float64, n)
	h := make([]float64, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
		h[i] = 1
	}

	for k := 0; k < m.NEstimators; k++ {
		for i := range F {
			g[i] = y[i] - F[i]
		}
		grower := &treeGrower{bins: bins, g: g, h: h, maxDepth: m.MaxDepth, minLeaf: max(1, m.MinSamplesLeaf)}
		tree := grower.grow(idx, 0)
		m.Trees = append(m.Trees, tree)
		for i, x := range X {
			F[i] += m.LearningRate * tree.Eval(x)
		}
	}
}

// Predict returns the ensemble output per row
func (m *GradientBoostingRegressor) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		f := m.Init
		for _, t := range m.Trees {
			f += m.LearningRate * t.Eval(x)
		}
		out[i] = f
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func clampProb(p float64) float64 {
	const eps = 1e-6
	return math.Min(math.Max(p, eps), 1-eps)
}
