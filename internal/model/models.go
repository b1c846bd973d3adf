package model

import "math"

// Classifier returns a positive-class probability per row
type Classifier interface {
	PredictProba(X [][]float64) []float64
}

// Regressor returns a prediction per row
type Regressor interface {
	Predict(X [][]float64) []float64
}

// ChurnModel is median imputation followed by boosted trees, optionally
// calibrated with a Platt sigmoid.
type ChurnModel struct {
	Imputer *MedianImputer              `json:"imputer"`
	Booster *GradientBoostingClassifier `json:"booster"`
	Platt   *Platt                      `json:"platt,omitempty"`
}

// PredictProba implements Classifier
func (m *ChurnModel) PredictProba(X [][]float64) []float64 {
	Xi := m.Imputer.Transform(X)
	out := make([]float64, len(Xi))
	for i, x := range Xi {
		s := m.Booster.Decision(x)
		if m.Platt != nil {
			out[i] = m.Platt.Apply(s)
		} else {
			out[i] = sigmoid(s)
		}
	}
	return out
}

// SpendModel is median imputation, standard scaling and logistic regression
type SpendModel struct {
	Imputer *MedianImputer      `json:"imputer"`
	Scaler  *StandardScaler     `json:"scaler"`
	Logit   *LogisticRegression `json:"logit"`
}

// PredictProba implements Classifier
func (m *SpendModel) PredictProba(X [][]float64) []float64 {
	return m.Logit.PredictProba(m.Scaler.Transform(m.Imputer.Transform(X)))
}

// RevenueModel predicts log1p(revenue) for customers who spend
type RevenueModel struct {
	Imputer *MedianImputer             `json:"imputer"`
	Booster *GradientBoostingRegressor `json:"booster"`
}

// Predict implements Regressor in log1p space
func (m *RevenueModel) Predict(X [][]float64) []float64 {
	return m.Booster.Predict(m.Imputer.Transform(X))
}

// PredictRevenue returns max(0, expm1(prediction)) per row
func (m *RevenueModel) PredictRevenue(X [][]float64) []float64 {
	out := m.Predict(X)
	for i, v := range out {
		out[i] = math.Max(0, math.Expm1(v))
	}
	return out
}
