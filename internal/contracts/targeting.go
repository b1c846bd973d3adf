package contracts

// Strategy names used in reports, logs and metrics
const (
	StrategyLossOnly = "loss_only"
	StrategyBlended  = "blended"
)

// StrategySummary is the budget accounting of one targeting run.
// ROI is nil when nothing was spent.
type StrategySummary struct {
	TargetedCustomers     int      `json:"targeted_customers"`
	TotalCost             float64  `json:"total_cost"`
	ExpectedPreventedLoss float64  `json:"expected_prevented_loss"`
	NetUplift             float64  `json:"net_uplift"`
	ROI                   *float64 `json:"roi"`
}

// TargetedCustomer is one selected customer with its ranking score
type TargetedCustomer struct {
	PredictionRow
	Rank          int      `json:"rank"`
	Score         float64  `json:"score"`
	LossPctRank   *float64 `json:"r_loss,omitempty"`
	CLVPctRank    *float64 `json:"r_clv,omitempty"`
	PreventedLoss float64  `json:"prevented_loss"`
}

// TargetingResult is the ordered selection plus its summary
type TargetingResult struct {
	Strategy    string             `json:"strategy"`
	ScoreColumn string             `json:"score_column"`
	Selected    []TargetedCustomer `json:"selected"`
	Summary     StrategySummary    `json:"summary"`
}

// CustomerIDs returns the selected ids in rank order
func (r *TargetingResult) CustomerIDs() []int64 {
	ids := make([]int64, len(r.Selected))
	for i, c := range r.Selected {
		ids[i] = c.CustomerID
	}
	return ids
}

// Top returns at most n selected customers
func (r *TargetingResult) Top(n int) []TargetedCustomer {
	if n < 0 || n >= len(r.Selected) {
		return r.Selected
	}
	return r.Selected[:n]
}
