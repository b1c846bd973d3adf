package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/memstore"
	"github.com/wonny/clv-retention/internal/model"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/redis"
)

var base = time.Date(2011, 3, 1, 0, 0, 0, 0, time.UTC)

func datasetRows(cutoffs, customers int) []contracts.RollingDatasetRow {
	var rows []contracts.RollingDatasetRow
	for k := 0; k < cutoffs; k++ {
		for i := 0; i < customers; i++ {
			var r contracts.RollingDatasetRow
			r.CutoffDate = base.AddDate(0, 0, 30*k)
			r.CustomerID = int64(i + 1)
			r.RecencyDaysObs = i
			r.TxnCountObs = customers - i
			r.NetRevenueObs = float64(customers-i) * 12
			if i%2 == 1 {
				r.ChurnLabel = 1
			} else {
				r.RevenuePredWindow = float64(i + 10)
			}
			rows = append(rows, r)
		}
	}
	return rows
}

func trainedBundle(t *testing.T, rows []contracts.RollingDatasetRow) *model.Bundle {
	t.Helper()
	p := model.DefaultParams()
	p.Churn.NEstimators = 10
	p.Churn.Calibrate = false
	p.Revenue.NEstimators = 10
	p.Revenue.MinSamplesLeaf = 2
	b, err := model.NewTrainer(p, logger.Nop()).Train(context.Background(), rows)
	require.NoError(t, err)
	return b
}

func TestScore(t *testing.T) {
	rows := datasetRows(3, 20)
	b := trainedBundle(t, rows)
	e := NewEngine(nil, logger.Nop())

	preds, err := e.Score(rows, b.FeatureSet.Columns, b)
	require.NoError(t, err)
	require.Len(t, preds, len(rows))

	for i, p := range preds {
		assert.Equal(t, rows[i].Key(), p.Key())
		assert.GreaterOrEqual(t, p.ChurnProb, 0.0)
		assert.LessOrEqual(t, p.ChurnProb, 1.0)
		assert.GreaterOrEqual(t, p.SpendProb, 0.0)
		assert.LessOrEqual(t, p.SpendProb, 1.0)
		assert.GreaterOrEqual(t, p.PredRevenueIfSpend, 0.0)
		assert.InDelta(t, p.SpendProb*p.PredRevenueIfSpend, p.ExpectedRevenue, 1e-9)
		assert.InDelta(t, p.ExpectedRevenue, p.ExpectedCLV+p.ExpectedLoss, 1e-9)
	}
}

func TestScoreRejectsFeatureMismatch(t *testing.T) {
	rows := datasetRows(2, 10)
	b := trainedBundle(t, rows)
	e := NewEngine(nil, logger.Nop())

	cols := b.FeatureSet.Columns
	swapped := append([]string(nil), cols...)
	swapped[0], swapped[1] = swapped[1], swapped[0]

	for name, c := range map[string][]string{
		"reordered": swapped,
		"missing":   cols[1:],
		"extra":     append(append([]string(nil), cols...), "txn_count_obs"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.Score(rows, c, b)
			var ve *contracts.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "feature_columns", ve.Field)
		})
	}
}

func TestScoreInputColumnsFromDataset(t *testing.T) {
	rows := datasetRows(2, 10)
	b := trainedBundle(t, rows)
	e := NewEngine(nil, logger.Nop())

	assert.NotContains(t, InputColumns(rows), contracts.ColAvgDaysBetweenInvoices)
	_, err := e.Score(rows, InputColumns(rows), b)
	require.NoError(t, err)

	// the dataset gained a column after the bundle was trained
	drifted := append([]contracts.RollingDatasetRow(nil), rows...)
	gap := 14.0
	drifted[0].AvgDaysBetweenInvoices = &gap
	cols := InputColumns(drifted)
	assert.Contains(t, cols, contracts.ColAvgDaysBetweenInvoices)

	_, err = e.Score(drifted, cols, b)
	var ve *contracts.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "feature_columns", ve.Field)
}

func TestScoreRejectsDuplicateKeys(t *testing.T) {
	rows := datasetRows(1, 10)
	b := trainedBundle(t, rows)

	rows = append(rows, rows[3])
	_, err := NewEngine(nil, logger.Nop()).Score(rows, b.FeatureSet.Columns, b)
	assert.True(t, contracts.IsIntegrity(err))
}

func TestCheckKeys(t *testing.T) {
	ok := []contracts.PredictionRow{{CutoffDate: base, CustomerID: 1}, {CutoffDate: base, CustomerID: 2}}
	assert.NoError(t, CheckKeys(ok))

	assert.True(t, contracts.IsIntegrity(CheckKeys([]contracts.PredictionRow{{CutoffDate: base}})))
	assert.True(t, contracts.IsIntegrity(CheckKeys([]contracts.PredictionRow{{CustomerID: 3}})))
}

func predsAt(cutoff time.Time, n int) []contracts.PredictionRow {
	out := make([]contracts.PredictionRow, n)
	for i := range out {
		out[i] = contracts.NewPredictionRow(contracts.RowKey{CutoffDate: cutoff, CustomerID: int64(i + 1)},
			float64(i)/float64(n), 0.5, float64(10*(i+1)))
	}
	return out
}

func TestPublish(t *testing.T) {
	store := memstore.New()
	e := NewEngine(store.Predictions(), logger.Nop())
	c1, c2 := base, base.AddDate(0, 0, 30)

	preds := append(predsAt(c2, 4), predsAt(c1, 3)...)
	res, err := e.Publish(context.Background(), preds)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{c1, c2}, res.Partitions)
	assert.Equal(t, c2, res.Latest)
	assert.Equal(t, 7, res.Rows)

	reader := store.Predictions()
	latest, err := reader.Latest(context.Background())
	require.NoError(t, err)
	assert.Len(t, latest, 4)

	top, err := reader.TopN(context.Background(), contracts.MetricExpectedLoss, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(4), top[0].CustomerID)
}

// failingWriter fails ReplacePartition for one cutoff
type failingWriter struct {
	*memstore.Predictions
	failAt *time.Time
}

func (w *failingWriter) ReplacePartition(ctx context.Context, cutoff time.Time, rows []contracts.PredictionRow) error {
	if w.failAt != nil && w.failAt.Equal(cutoff) {
		return errors.New("disk full")
	}
	return w.Predictions.ReplacePartition(ctx, cutoff, rows)
}

func TestPublishFailureKeepsPointer(t *testing.T) {
	store := memstore.New()
	c1, c2, c3 := base, base.AddDate(0, 0, 30), base.AddDate(0, 0, 60)
	writer := &failingWriter{Predictions: store.Predictions()}
	e := NewEngine(writer, logger.Nop())

	_, err := e.Publish(context.Background(), predsAt(c1, 2))
	require.NoError(t, err)

	writer.failAt = &c2
	_, err = e.Publish(context.Background(), append(predsAt(c2, 2), predsAt(c3, 2)...))
	require.Error(t, err)

	latest, err := store.Predictions().LatestCutoff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c1, latest)
}

func TestPublishEmpty(t *testing.T) {
	_, err := NewEngine(memstore.New().Predictions(), logger.Nop()).Publish(context.Background(), nil)
	assert.True(t, contracts.IsValidation(err))
}

func TestLatestOnly(t *testing.T) {
	preds := append(predsAt(base, 3), predsAt(base.AddDate(0, 0, 30), 2)...)
	latest := LatestOnly(preds)
	require.Len(t, latest, 2)
	assert.Equal(t, base.AddDate(0, 0, 30), latest[0].CutoffDate)
}

type countingReader struct {
	contracts.PredictionReader
	topCalls int
}

func (c *countingReader) TopN(ctx context.Context, metric string, n int) ([]contracts.PredictionRow, error) {
	c.topCalls++
	return c.PredictionReader.TopN(ctx, metric, n)
}

func TestCachedReader(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memstore.New()
	_, err := NewEngine(store.Predictions(), logger.Nop()).Publish(context.Background(), predsAt(base, 5))
	require.NoError(t, err)

	inner := &countingReader{PredictionReader: store.Predictions()}
	cached := NewCachedReader(inner, redis.NewCache(redis.Wrap(rdb), "test"))
	ctx := context.Background()

	first, err := cached.TopN(ctx, contracts.MetricExpectedCLV, 3)
	require.NoError(t, err)
	second, err := cached.TopN(ctx, contracts.MetricExpectedCLV, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.topCalls)

	cutoff, err := cached.LatestCutoff(ctx)
	require.NoError(t, err)
	assert.True(t, cutoff.Equal(base))

	s, err := cached.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Rows)

	_, err = cached.TopN(ctx, "customer_id; DROP TABLE", 3)
	assert.True(t, contracts.IsValidation(err))

	require.NoError(t, cached.Invalidate(ctx))
}

func TestCachedReaderNotFound(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cached := NewCachedReader(memstore.New().Predictions(), redis.NewCache(redis.Wrap(rdb), "test"))
	_, err := cached.Summary(context.Background())
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}
