package model

import "github.com/wonny/clv-retention/internal/contracts"

// ChurnParams configure the boosted churn classifier
type ChurnParams struct {
	NEstimators  int     `yaml:"n_estimators" json:"n_estimators"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	MaxDepth     int     `yaml:"max_depth" json:"max_depth"`
	Calibrate    bool    `yaml:"calibrate" json:"calibrate"`
}

// SpendParams configure the spend logistic regression
type SpendParams struct {
	C            float64 `yaml:"c" json:"c"`
	MaxIter      int     `yaml:"max_iter" json:"max_iter"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
}

// RevenueParams configure the boosted revenue regressor
type RevenueParams struct {
	NEstimators    int     `yaml:"n_estimators" json:"n_estimators"`
	LearningRate   float64 `yaml:"learning_rate" json:"learning_rate"`
	MaxDepth       int     `yaml:"max_depth" json:"max_depth"`
	MinSamplesLeaf int     `yaml:"min_samples_leaf" json:"min_samples_leaf"`
}

// Params holds the hyperparameters of all three models
type Params struct {
	Churn   ChurnParams   `yaml:"churn" json:"churn"`
	Spend   SpendParams   `yaml:"spend" json:"spend"`
	Revenue RevenueParams `yaml:"revenue" json:"revenue"`
}

// DefaultParams returns the default hyperparameters
func DefaultParams() Params {
	return Params{
		Churn:   ChurnParams{NEstimators: 200, LearningRate: 0.05, MaxDepth: 3, Calibrate: true},
		Spend:   SpendParams{C: 1.0, MaxIter: 1000, LearningRate: 0.1},
		Revenue: RevenueParams{NEstimators: 200, LearningRate: 0.05, MaxDepth: 3, MinSamplesLeaf: 20},
	}
}

// Validate checks every hyperparameter range
func (p Params) Validate() error {
	switch {
	case p.Churn.NEstimators <= 0:
		return contracts.NewValidationError("models.churn.n_estimators", "must be > 0, got %d", p.Churn.NEstimators)
	case p.Churn.LearningRate <= 0 || p.Churn.LearningRate > 1:
		return contracts.NewValidationError("models.churn.learning_rate", "must be within (0, 1], got %v", p.Churn.LearningRate)
	case p.Churn.MaxDepth < 1 || p.Churn.MaxDepth > 8:
		return contracts.NewValidationError("models.churn.max_depth", "must be within [1, 8], got %d", p.Churn.MaxDepth)
	case p.Spend.C <= 0:
		return contracts.NewValidationError("models.spend.c", "must be > 0, got %v", p.Spend.C)
	case p.Spend.MaxIter <= 0:
		return contracts.NewValidationError("models.spend.max_iter", "must be > 0, got %d", p.Spend.MaxIter)
	case p.Spend.LearningRate <= 0:
		return contracts.NewValidationError("models.spend.learning_rate", "must be > 0, got %v", p.Spend.LearningRate)
	case p.Revenue.NEstimators <= 0:
		return contracts.NewValidationError("models.revenue.n_estimators", "must be > 0, got %d", p.Revenue.NEstimators)
	case p.Revenue.LearningRate <= 0 || p.Revenue.LearningRate > 1:
		return contracts.NewValidationError("models.revenue.learning_rate", "must be within (0, 1], got %v", p.Revenue.LearningRate)
	case p.Revenue.MaxDepth < 1 || p.Revenue.MaxDepth > 8:
		return contracts.NewValidationError("models.revenue.max_depth", "must be within [1, 8], got %d", p.Revenue.MaxDepth)
	case p.Revenue.MinSamplesLeaf < 1:
		return contracts.NewValidationError("models.revenue.min_samples_leaf", "must be >= 1, got %d", p.Revenue.MinSamplesLeaf)
	}
	return nil
}
