package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogisticRegression is an L2-regularised binary logistic model fitted by
// batch gradient descent. C is the inverse regularisation strength.
type LogisticRegression struct {
	C            float64   `json:"c"`
	MaxIter      int       `json:"max_iter"`
	LearningRate float64   `json:"learning_rate"`
	Coef         []float64 `json:"coef"`
	Intercept    float64   `json:"intercept"`
	Iterations   int       `json:"iterations"`
}

const logisticTol = 1e-6

// Fit minimises mean log loss + ||w||^2 / (2 * C * n)
func (m *LogisticRegression) Fit(X [][]float64, y []int) {
	n := len(X)
	if n == 0 {
		return
	}
	d := len(X[0])
	m.Coef = make([]float64, d)
	m.Intercept = 0

	lambda := 0.0
	if m.C > 0 {
		lambda = 1 / (m.C * float64(n))
	}

	grad := make([]float64, d)
	for it := 0; it < m.MaxIter; it++ {
		for j := range grad {
			grad[j] = 0
		}
		gb := 0.0
		for i, x := range X {
			r := sigmoid(floats.Dot(m.Coef, x)+m.Intercept) - float64(y[i])
			floats.AddScaled(grad, r, x)
			gb += r
		}
		floats.Scale(1/float64(n), grad)
		floats.AddScaled(grad, lambda, m.Coef)
		gb /= float64(n)

		floats.AddScaled(m.Coef, -m.LearningRate, grad)
		m.Intercept -= m.LearningRate * gb
		m.Iterations = it + 1

		if math.Max(floats.Norm(grad, math.Inf(1)), math.Abs(gb)) < logisticTol {
			break
		}
	}
}

// PredictProba returns P(y = 1) per row
func (m *LogisticRegression) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = sigmoid(floats.Dot(m.Coef, x) + m.Intercept)
	}
	return out
}

// Platt maps a raw score s to sigmoid(A*s + B)
type Platt struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// FitPlatt fits the sigmoid by damped Newton steps on Platt's smoothed targets
func FitPlatt(scores []float64, y []int) *Platt {
	var pos, neg float64
	for _, v := range y {
		if v == 1 {
			pos++
		} else {
			neg++
		}
	}
	targets := make([]float64, len(y))
	for i, v := range y {
		if v == 1 {
			targets[i] = (pos + 1) / (pos + 2)
		} else {
			targets[i] = 1 / (neg + 2)
		}
	}

	loss := func(a, b float64) float64 {
		l := 0.0
		for i, s := range scores {
			q := clampProb(sigmoid(a*s + b))
			l -= targets[i]*math.Log(q) + (1-targets[i])*math.Log(1-q)
		}
		return l
	}

	p := &Platt{A: 1, B: 0}
	current := loss(p.A, p.B)
	for it := 0; it < 100; it++ {
		var ga, gb, haa, hab, hbb float64
		for i, s := range scores {
			q := sigmoid(p.A*s + p.B)
			r := q - targets[i]
			w := q * (1 - q)
			ga += r * s
			gb += r
			haa += w * s * s
			hab += w * s
			hbb += w
		}
		// ridge keeps the 2x2 system invertible
		haa += 1e-9
		hbb += 1e-9
		det := haa*hbb - hab*hab
		if det <= 0 {
			break
		}
		da := (hbb*ga - hab*gb) / det
		db := (haa*gb - hab*ga) / det

		step := 1.0
		for step > 1e-8 {
			next := loss(p.A-step*da, p.B-step*db)
			if next <= current {
				current = next
				break
			}
			step /= 2
		}
		if step <= 1e-8 {
			break
		}
		p.A -= step * da
		p.B -= step * db
		if math.Abs(step*da) < 1e-10 && math.Abs(step*db) < 1e-10 {
			break
		}
	}
	return p
}

// Apply calibrates one raw score
func (p *Platt) Apply(s float64) float64 {
	return sigmoid(p.A*s + p.B)
}
