package targeting

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
)

var cutoff = time.Date(2011, 9, 1, 0, 0, 0, 0, time.UTC)

// lossRows returns n customers with expected_loss = n - i
func lossRows(n int) []contracts.PredictionRow {
	rows := make([]contracts.PredictionRow, n)
	for i := range rows {
		rows[i] = contracts.PredictionRow{
			CutoffDate:   cutoff,
			CustomerID:   int64(i),
			ExpectedLoss: float64(n - i),
			ExpectedCLV:  float64(i),
		}
	}
	return rows
}

func TestLossOnlyScenario(t *testing.T) {
	p := Params{BudgetEUR: 10, CostPerCustomer: 1, MaxCustomers: 5, SaveRate: 0.1}

	result, err := LossOnly(lossRows(100), p)
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1, 2, 3, 4}, result.CustomerIDs())
	assert.Equal(t, contracts.StrategyLossOnly, result.Strategy)
	assert.Equal(t, ScoreExpectedLoss, result.ScoreColumn)

	s := result.Summary
	assert.Equal(t, 5, s.TargetedCustomers)
	assert.InDelta(t, 5.0, s.TotalCost, 1e-9)
	assert.InDelta(t, 49.0, s.ExpectedPreventedLoss, 1e-9)
	assert.InDelta(t, 44.0, s.NetUplift, 1e-9)
	require.NotNil(t, s.ROI)
	assert.InDelta(t, 8.8, *s.ROI, 1e-9)

	for i, c := range result.Selected {
		assert.Equal(t, i+1, c.Rank)
		assert.InDelta(t, 0.1*c.ExpectedLoss, c.PreventedLoss, 1e-12)
	}
}

func TestZeroBudget(t *testing.T) {
	p := Params{BudgetEUR: 0, CostPerCustomer: 1, MaxCustomers: 5, SaveRate: 0.1}

	result, err := LossOnly(lossRows(100), p)
	require.NoError(t, err)
	assert.Empty(t, result.Selected)
	assert.Zero(t, result.Summary.TotalCost)
	assert.Nil(t, result.Summary.ROI)
}

func TestBudgetBindsBeforeCapacity(t *testing.T) {
	p := Params{BudgetEUR: 7.5, CostPerCustomer: 2.5, MaxCustomers: 10, SaveRate: 0.2}

	result, err := LossOnly(lossRows(20), p)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Summary.TargetedCustomers)
	assert.InDelta(t, 7.5, result.Summary.TotalCost, 1e-9)
}

func TestOptimizeBounds(t *testing.T) {
	rows := lossRows(50)
	budgets := []float64{0, 0.3, 0.7, 1, 3.3, 10, 49.9, 1000}
	costs := []float64{0.1, 0.3, 1, 2.5, 7}
	maxes := []int{1, 3, 25, 100}

	for _, b := range budgets {
		for _, c := range costs {
			for _, m := range maxes {
				p := Params{BudgetEUR: b, CostPerCustomer: c, MaxCustomers: m, SaveRate: 0.15}
				result, err := LossOnly(rows, p)
				require.NoError(t, err)

				n := result.Summary.TargetedCustomers
				assert.LessOrEqual(t, n, m)
				assert.LessOrEqual(t, n, len(rows))
				assert.LessOrEqual(t, result.Summary.TotalCost, b, "budget=%v cost=%v", b, c)
				assert.Equal(t, result.Summary.TotalCost == 0, result.Summary.ROI == nil)
			}
		}
	}
}

func TestOptimizeUnboundedBudget(t *testing.T) {
	rows := lossRows(10)
	for _, b := range []float64{1e18, 1e20, 1e300, math.Inf(1)} {
		p := Params{BudgetEUR: b, CostPerCustomer: 0.01, MaxCustomers: 5, SaveRate: 0.15}
		assert.Equal(t, math.MaxInt, p.Affordable(), "budget=%v", b)

		result, err := LossOnly(rows, p)
		require.NoError(t, err)
		assert.Equal(t, 5, result.Summary.TargetedCustomers, "budget=%v", b)
		assert.InDelta(t, 0.05, result.Summary.TotalCost, 1e-9)
	}

	// fewer rows than capacity
	p := Params{BudgetEUR: 1e300, CostPerCustomer: 1, MaxCustomers: 100, SaveRate: 0.15}
	result, err := LossOnly(rows, p)
	require.NoError(t, err)
	assert.Equal(t, len(rows), result.Summary.TargetedCustomers)
}

func TestOptimizeIdempotent(t *testing.T) {
	rows := lossRows(30)
	// introduce ties
	for i := range rows {
		rows[i].ExpectedLoss = float64(i % 4)
	}
	p := Params{BudgetEUR: 10, CostPerCustomer: 1, MaxCustomers: 8, SaveRate: 0.5}

	first, err := LossOnly(rows, p)
	require.NoError(t, err)
	second, err := LossOnly(rows, p)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// ties keep input order: the 3s are ids 3, 7, 11, ...
	assert.Equal(t, []int64{3, 7, 11, 15, 19, 23, 27, 2}, first.CustomerIDs())
}

func TestOptimizeDoesNotMutateInput(t *testing.T) {
	rows := lossRows(5)
	rows[0].ExpectedLoss = 0
	before := append([]contracts.PredictionRow(nil), rows...)

	_, err := LossOnly(rows, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, before, rows)
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name  string
		p     Params
		field string
	}{
		{"zero cost", Params{BudgetEUR: 1, CostPerCustomer: 0, MaxCustomers: 1, SaveRate: 0.1}, "cost_per_customer"},
		{"negative budget", Params{BudgetEUR: -1, CostPerCustomer: 1, MaxCustomers: 1, SaveRate: 0.1}, "budget_eur"},
		{"zero capacity", Params{BudgetEUR: 1, CostPerCustomer: 1, MaxCustomers: 0, SaveRate: 0.1}, "max_customers"},
		{"save rate above one", Params{BudgetEUR: 1, CostPerCustomer: 1, MaxCustomers: 1, SaveRate: 1.5}, "save_rate"},
		{"save rate negative", Params{BudgetEUR: 1, CostPerCustomer: 1, MaxCustomers: 1, SaveRate: -0.1}, "save_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LossOnly(lossRows(3), tt.p)
			require.Error(t, err)

			var ve *contracts.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.NoError(t, DefaultParams().Validate())
}

func TestOptimizerRun(t *testing.T) {
	reg := metrics.New()
	o := NewOptimizer(
		Params{BudgetEUR: 10, CostPerCustomer: 1, MaxCustomers: 5, SaveRate: 0.1},
		DefaultWeights(), logger.Nop(), reg,
	)

	sim, err := o.Run(context.Background(), lossRows(100))
	require.NoError(t, err)
	assert.Len(t, sim.LossOnly.Selected, 5)
	assert.Len(t, sim.Blended.Selected, 5)

	assert.Equal(t, 5.0, testutil.ToFloat64(reg.TargetedCount.WithLabelValues(contracts.StrategyLossOnly)))
	assert.InDelta(t, 49.0, testutil.ToFloat64(reg.PreventedLoss.WithLabelValues(contracts.StrategyLossOnly)), 1e-9)
}
