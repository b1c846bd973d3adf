package quality

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/memstore"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
)

var base = time.Date(2011, 6, 1, 0, 0, 0, 0, time.UTC)

func pred(id int64, churn, spend, rev float64) contracts.PredictionRow {
	return contracts.NewPredictionRow(contracts.RowKey{CutoffDate: base, CustomerID: id}, churn, spend, rev)
}

func TestValidatePredictionStore(t *testing.T) {
	cols := contracts.PredictionColumns()
	good := []contracts.PredictionRow{pred(1, 0.2, 0.5, 100), pred(2, 0.8, 0.1, 10)}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidatePredictionStore(cols, good))
	})

	t.Run("missing column", func(t *testing.T) {
		err := ValidatePredictionStore([]string{"customer_id", "churn_prob"}, good)
		require.Error(t, err)
		assert.True(t, contracts.IsIntegrity(err))
		assert.Contains(t, err.Error(), "expected_loss")
	})

	t.Run("duplicate customer", func(t *testing.T) {
		rows := append(good, pred(1, 0.3, 0.3, 30))
		err := ValidatePredictionStore(cols, rows)
		require.Error(t, err)
		assert.True(t, contracts.IsIntegrity(err))
	})

	t.Run("negative value", func(t *testing.T) {
		bad := pred(3, 0.5, 0.5, 10)
		bad.ExpectedLoss = -1
		err := ValidatePredictionStore(cols, append(good, bad))
		require.Error(t, err)
		assert.True(t, contracts.IsIntegrity(err))
	})
}

func seq(from, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(from + i)
	}
	return out
}

func TestPSI(t *testing.T) {
	ref := seq(0, 100)

	assert.InDelta(t, 0.0, PSI(ref, ref, 10), 1e-12)
	assert.Greater(t, PSI(ref, seq(100, 100), 10), 1.0)
	assert.Greater(t, PSI(ref, seq(50, 100), 10), PSI(ref, seq(10, 100), 10))

	assert.True(t, math.IsNaN(PSI(nil, ref, 10)))
	assert.True(t, math.IsNaN(PSI(ref, nil, 10)))
}

func TestDriftReport(t *testing.T) {
	var train, latest []contracts.RollingDatasetRow
	for i := 0; i < 50; i++ {
		var r contracts.RollingDatasetRow
		r.TxnCountObs = i
		r.NetRevenueObs = float64(i)
		train = append(train, r)

		var l contracts.RollingDatasetRow
		l.TxnCountObs = i
		l.NetRevenueObs = float64(i + 1000)
		latest = append(latest, l)
	}

	drift, err := DriftReport(train, latest, []string{contracts.ColTxnCountObs, contracts.ColNetRevenueObs}, 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, drift[contracts.ColTxnCountObs], 1e-12)
	assert.Greater(t, drift[contracts.ColNetRevenueObs], 1.0)

	drift, err = DriftReport(train, nil, DefaultDriftFeatures(), 10)
	require.NoError(t, err)
	assert.Len(t, drift, 3)
	for _, v := range drift {
		assert.Equal(t, 0.0, v)
	}

	_, err = DriftReport(train, latest, []string{"country"}, 10)
	assert.True(t, contracts.IsValidation(err))
}

func TestCalibration(t *testing.T) {
	yTrue := []int{0, 0, 1, 1}

	perfect, err := Calibration(yTrue, []float64{0, 0, 1, 1}, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, perfect.Brier)

	probs := []float64{0.1, 0.2, 0.3, 0.4, 0.6, 0.7, 0.8, 0.9}
	labels := []int{0, 0, 0, 1, 0, 1, 1, 1}
	r, err := Calibration(labels, probs, 4)
	require.NoError(t, err)
	assert.Equal(t, len(probs), r.Rows)

	total := 0
	for i, b := range r.Curve {
		total += b.Count
		assert.GreaterOrEqual(t, b.FractionPos, 0.0)
		assert.LessOrEqual(t, b.FractionPos, 1.0)
		if i > 0 {
			assert.Greater(t, b.MeanPredicted, r.Curve[i-1].MeanPredicted)
		}
	}
	assert.Equal(t, len(probs), total)
	assert.Greater(t, r.Brier, 0.0)
	assert.Less(t, r.Brier, 0.25)

	_, err = Calibration([]int{1}, []float64{0.2, 0.3}, 4)
	assert.True(t, contracts.IsValidation(err))

	empty, err := Calibration(nil, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Curve)
}

func TestThresholdSanity(t *testing.T) {
	probs := make([]float64, 11)
	for i := range probs {
		probs[i] = float64(i) / 10
	}
	r := ThresholdSanity(probs)
	assert.InDelta(t, 5.0/11, r.PctAbove05, 1e-12)
	assert.InDelta(t, 3.0/11, r.PctAbove07, 1e-12)
	assert.Len(t, r.Quantiles, 5)
	assert.InDelta(t, 0.5, r.Quantiles["0.5"], 0.1)
	assert.LessOrEqual(t, r.Quantiles["0.1"], r.Quantiles["0.9"])

	empty := ThresholdSanity(nil)
	assert.Zero(t, empty.PctAbove05)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.PSIBins = 1
	assert.True(t, contracts.IsValidation(p.Validate()))

	p = DefaultParams()
	p.DriftFeatures = []string{"nope"}
	assert.True(t, contracts.IsValidation(p.Validate()))
}

func seedStore(t *testing.T, dupLatest bool) *memstore.Store {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()

	var latestPreds []contracts.PredictionRow
	for k := 0; k < 3; k++ {
		cutoff := base.AddDate(0, 0, 30*k)
		var rows []contracts.RollingDatasetRow
		for i := 0; i < 20; i++ {
			var r contracts.RollingDatasetRow
			r.CutoffDate = cutoff
			r.CustomerID = int64(i + 1)
			r.TxnCountObs = i + k
			r.NetRevenueObs = float64(10 * i)
			r.RecencyDaysObs = i
			if i >= 10 {
				r.ChurnLabel = 1
			}
			rows = append(rows, r)

			if k == 2 {
				churn := 0.2
				if i >= 10 {
					churn = 0.8
				}
				latestPreds = append(latestPreds, contracts.NewPredictionRow(r.Key(), churn, 0.5, 100))
			}
		}
		require.NoError(t, s.Dataset().ReplacePartition(ctx, cutoff, rows))
	}

	if dupLatest {
		latestPreds = append(latestPreds, latestPreds[0])
	}
	latest := base.AddDate(0, 0, 60)
	require.NoError(t, s.Predictions().ReplacePartition(ctx, latest, latestPreds))
	require.NoError(t, s.Predictions().SetLatest(ctx, latest))
	return s
}

func TestCheckerRun(t *testing.T) {
	s := seedStore(t, false)
	reg := metrics.New()
	c := NewChecker(DefaultParams(), logger.Nop(), reg)

	src := Sources{Columns: s.Predictions(), Predictions: s.Predictions(), Dataset: s.Dataset()}
	r, err := c.Run(context.Background(), src, nil)
	require.NoError(t, err)

	assert.Equal(t, base.AddDate(0, 0, 60), r.CutoffDate)
	assert.Equal(t, 20, r.Rows)
	assert.Len(t, r.Drift, 3)
	assert.Greater(t, r.Drift[contracts.ColTxnCountObs], 0.0)
	assert.InDelta(t, 0.0, r.Drift[contracts.ColNetRevenueObs], 1e-12)
	assert.Equal(t, 20, r.Calibration.Rows)
	assert.InDelta(t, 0.04, r.Calibration.Brier, 1e-9)
	assert.InDelta(t, 0.5, r.Thresholds.PctAbove05, 1e-12)

	assert.InDelta(t, r.Drift[contracts.ColTxnCountObs],
		testutil.ToFloat64(reg.FeatureDrift.WithLabelValues(contracts.ColTxnCountObs)), 1e-12)
}

func TestCheckerRunTrainCutoffs(t *testing.T) {
	s := seedStore(t, false)
	c := NewChecker(DefaultParams(), logger.Nop(), nil)
	src := Sources{Columns: s.Predictions(), Predictions: s.Predictions(), Dataset: s.Dataset()}

	first, err := c.Run(context.Background(), src, []time.Time{base})
	require.NoError(t, err)
	assert.Greater(t, first.Drift[contracts.ColTxnCountObs], 0.0)

	// the latest cutoff is never its own reference
	self, err := c.Run(context.Background(), src, []time.Time{base.AddDate(0, 0, 60)})
	require.NoError(t, err)
	for f, psi := range self.Drift {
		assert.Equal(t, 0.0, psi, f)
	}
}

func TestCheckerRunRejectsDuplicates(t *testing.T) {
	s := seedStore(t, true)
	c := NewChecker(DefaultParams(), logger.Nop(), nil)
	src := Sources{Columns: s.Predictions(), Predictions: s.Predictions(), Dataset: s.Dataset()}

	_, err := c.Run(context.Background(), src, nil)
	require.Error(t, err)
	assert.True(t, contracts.IsIntegrity(err))
}
