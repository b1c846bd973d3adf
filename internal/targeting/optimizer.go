// Package targeting turns scored customers into a budgeted retention list.
package targeting

import (
	"math"
	"sort"

	"github.com/wonny/clv-retention/internal/contracts"
)

// Score column names recorded on each TargetingResult
const (
	ScoreExpectedLoss = contracts.MetricExpectedLoss
	ScoreBlended      = "blended_score"
)

// Params are the budget and capacity constraints of one campaign
type Params struct {
	BudgetEUR       float64 `json:"budget_eur" yaml:"budget_eur" validate:"gte=0"`
	CostPerCustomer float64 `json:"cost_per_customer" yaml:"cost_per_customer" validate:"gt=0"`
	MaxCustomers    int     `json:"max_customers" yaml:"max_customers" validate:"gt=0"`
	SaveRate        float64 `json:"save_rate" yaml:"save_rate" validate:"gte=0,lte=1"`
}

// DefaultParams returns the decisioning defaults
func DefaultParams() Params {
	return Params{
		BudgetEUR:       500,
		CostPerCustomer: 1,
		MaxCustomers:    2000,
		SaveRate:        0.15,
	}
}

// Validate rejects parameters the optimizer cannot honour
func (p Params) Validate() error {
	switch {
	case math.IsNaN(p.CostPerCustomer) || p.CostPerCustomer <= 0:
		return contracts.NewValidationError("cost_per_customer", "must be > 0, got %v", p.CostPerCustomer)
	case math.IsNaN(p.BudgetEUR) || p.BudgetEUR < 0:
		return contracts.NewValidationError("budget_eur", "must be >= 0, got %v", p.BudgetEUR)
	case p.MaxCustomers <= 0:
		return contracts.NewValidationError("max_customers", "must be > 0, got %d", p.MaxCustomers)
	case math.IsNaN(p.SaveRate) || p.SaveRate < 0 || p.SaveRate > 1:
		return contracts.NewValidationError("save_rate", "must be within [0, 1], got %v", p.SaveRate)
	}
	return nil
}

// Affordable is the number of customers the budget pays for
func (p Params) Affordable() int {
	q := math.Floor(p.BudgetEUR / p.CostPerCustomer)
	if q >= float64(math.MaxInt) {
		// capacity decides when the budget is effectively unlimited
		return math.MaxInt
	}
	n := int(q)
	// floor of a rounded quotient can still overshoot the budget by an ulp
	for n > 0 && float64(n)*p.CostPerCustomer > p.BudgetEUR {
		n--
	}
	return max(n, 0)
}

// Optimize ranks candidates by Score and keeps the top customers allowed
// by capacity, then by budget. Ties keep their input order.
//
// Prevented loss is always save_rate * expected_loss regardless of the
// ranking score. ROI is nil when nothing is spent.
func Optimize(candidates []contracts.TargetedCustomer, p Params) (*contracts.TargetingResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	ranked := make([]contracts.TargetedCustomer, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	// capacity first, then budget
	n := min(len(ranked), p.MaxCustomers)
	n = min(n, p.Affordable())
	selected := ranked[:n]

	var lossSum float64
	for i := range selected {
		selected[i].Rank = i + 1
		selected[i].PreventedLoss = p.SaveRate * selected[i].ExpectedLoss
		lossSum += selected[i].ExpectedLoss
	}

	summary := contracts.StrategySummary{
		TargetedCustomers:     n,
		TotalCost:             float64(n) * p.CostPerCustomer,
		ExpectedPreventedLoss: p.SaveRate * lossSum,
	}
	summary.NetUplift = summary.ExpectedPreventedLoss - summary.TotalCost
	if summary.TotalCost > 0 {
		roi := summary.NetUplift / summary.TotalCost
		summary.ROI = &roi
	}

	return &contracts.TargetingResult{Selected: selected, Summary: summary}, nil
}

// LossOnly targets by expected_loss
func LossOnly(preds []contracts.PredictionRow, p Params) (*contracts.TargetingResult, error) {
	candidates := make([]contracts.TargetedCustomer, len(preds))
	for i, pr := range preds {
		candidates[i] = contracts.TargetedCustomer{PredictionRow: pr, Score: pr.ExpectedLoss}
	}

	result, err := Optimize(candidates, p)
	if err != nil {
		return nil, err
	}
	result.Strategy = contracts.StrategyLossOnly
	result.ScoreColumn = ScoreExpectedLoss
	return result, nil
}

// Blended targets by the percentile-rank blend of expected_loss and expected_clv
func Blended(preds []contracts.PredictionRow, p Params, w Weights) (*contracts.TargetingResult, error) {
	candidates, err := BuildBlendedScore(preds, w)
	if err != nil {
		return nil, err
	}

	result, err := Optimize(candidates, p)
	if err != nil {
		return nil, err
	}
	result.Strategy = contracts.StrategyBlended
	result.ScoreColumn = ScoreBlended
	return result, nil
}
