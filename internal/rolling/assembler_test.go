package rolling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/memstore"
	"github.com/wonny/clv-retention/internal/window"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
)

var (
	start     = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	durations = window.Durations{ObservationDays: 60, GapDays: 14, PredictionDays: 30}
)

// seedLedger loads customers 1..5 buying every (id+2) days over 201 days.
// Customer 5 stops after day 100.
func seedLedger(t *testing.T, store *memstore.Store) {
	t.Helper()

	var txns []contracts.Transaction
	for cust := int64(1); cust <= 5; cust++ {
		every := int(cust) + 2
		for day := 0; day <= 200; day += every {
			if cust == 5 && day > 100 {
				break
			}
			ts := start.AddDate(0, 0, day).Add(10 * time.Hour)
			inv := fmt.Sprintf("%d-%d", cust, day)
			txns = append(txns, contracts.NewTransaction(inv, cust, "SKU1", 2, 3.5, ts))
		}
	}
	// pin the ledger end at day 200
	txns = append(txns, contracts.NewTransaction("END", 9, "SKU9", 1, 1, start.AddDate(0, 0, 200).Add(11*time.Hour)))

	_, err := store.Ledger().ReplaceAll(context.Background(), txns)
	require.NoError(t, err)
}

func params(workers int) Params {
	return Params{Durations: durations, StepDays: 20, Workers: workers}
}

func TestBuild(t *testing.T) {
	store := memstore.New()
	seedLedger(t, store)

	reg := metrics.New()
	a := NewAssembler(store.Ledger(), store.Dataset(), logger.Nop(), WithMetrics(reg))
	result, err := a.Build(context.Background(), params(2))
	require.NoError(t, err)

	// first = day 60, last = day 200-44 = 156
	want := []time.Time{
		start.AddDate(0, 0, 60),
		start.AddDate(0, 0, 80),
		start.AddDate(0, 0, 100),
		start.AddDate(0, 0, 120),
		start.AddDate(0, 0, 140),
	}
	assert.Equal(t, want, result.Cutoffs)
	assert.Equal(t, want, Cutoffs(result.Rows))
	assert.Equal(t, 5, result.Stats.DistinctCutoffs)
	assert.Equal(t, want[4], result.Stats.LatestCutoff)

	seen := make(map[contracts.RowKey]bool)
	for i, r := range result.Rows {
		assert.False(t, seen[r.Key()], "duplicate key %v", r.Key())
		seen[r.Key()] = true
		if i > 0 {
			assert.True(t, result.Rows[i-1].Key().Less(r.Key()), "rows not sorted at %d", i)
		}
		assert.GreaterOrEqual(t, r.TxnCountObs, 1)
	}

	// customer 5 is last seen at day 99; at cutoff 100 it churns
	for _, r := range AtCutoff(result.Rows, want[2]) {
		if r.CustomerID == 5 {
			assert.Equal(t, 1, r.ChurnLabel)
			assert.Zero(t, r.RevenuePredWindow)
		}
		if r.CustomerID == 1 {
			assert.Equal(t, 0, r.ChurnLabel)
			assert.Positive(t, r.RevenuePredWindow)
		}
	}

	cutoffs, err := store.Dataset().Cutoffs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, cutoffs)

	stored, err := store.Dataset().LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, len(result.Rows))
}

func TestBuildParallelMatchesSequential(t *testing.T) {
	store := memstore.New()
	seedLedger(t, store)

	seq, err := NewAssembler(store.Ledger(), nil, logger.Nop()).Build(context.Background(), params(1))
	require.NoError(t, err)
	par, err := NewAssembler(store.Ledger(), nil, logger.Nop()).Build(context.Background(), params(8))
	require.NoError(t, err)

	assert.Equal(t, seq.Rows, par.Rows)
	assert.Equal(t, seq.Stats, par.Stats)
}

func TestBuildWithProgress(t *testing.T) {
	store := memstore.New()
	seedLedger(t, store)

	var buf bytes.Buffer
	_, err := NewAssembler(store.Ledger(), nil, logger.Nop(), WithProgress(&buf)).Build(context.Background(), params(2))
	require.NoError(t, err)
	assert.NotEmpty(t, buf.String())
}

func TestBuildInsufficientHistory(t *testing.T) {
	store := memstore.New()
	txns := []contracts.Transaction{
		contracts.NewTransaction("1", 1, "A", 1, 1, start),
		contracts.NewTransaction("2", 1, "A", 1, 1, start.AddDate(0, 0, 90)),
	}
	_, err := store.Ledger().ReplaceAll(context.Background(), txns)
	require.NoError(t, err)

	_, err = NewAssembler(store.Ledger(), store.Dataset(), logger.Nop()).Build(context.Background(), params(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrInsufficientHistory))

	cutoffs, err := store.Dataset().Cutoffs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cutoffs)
}

func TestBuildInvalidStep(t *testing.T) {
	store := memstore.New()
	seedLedger(t, store)

	p := params(1)
	p.StepDays = 0
	_, err := NewAssembler(store.Ledger(), nil, logger.Nop()).Build(context.Background(), p)
	require.Error(t, err)
	assert.True(t, contracts.IsValidation(err))
}

// failingWriter fails ReplacePartition for one cutoff
type failingWriter struct {
	*memstore.Dataset
	failAt time.Time
}

func (w *failingWriter) ReplacePartition(ctx context.Context, cutoff time.Time, rows []contracts.RollingDatasetRow) error {
	if w.failAt.Equal(cutoff) {
		return errors.New("disk full")
	}
	return w.Dataset.ReplacePartition(ctx, cutoff, rows)
}

func TestBuildPersistFailure(t *testing.T) {
	store := memstore.New()
	seedLedger(t, store)
	writer := &failingWriter{Dataset: store.Dataset(), failAt: start.AddDate(0, 0, 100)}

	_, err := NewAssembler(store.Ledger(), writer, logger.Nop()).Build(context.Background(), params(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2010-04-11")
}

func TestBuildCancelled(t *testing.T) {
	store := memstore.New()
	seedLedger(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAssembler(store.Ledger(), nil, logger.Nop()).Build(ctx, params(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func row(cutoff time.Time, id int64, net float64) contracts.RollingDatasetRow {
	var r contracts.RollingDatasetRow
	r.CutoffDate = cutoff
	r.CustomerID = id
	r.NetRevenueObs = net
	r.TxnCountObs = 1
	return r
}

func TestAssemble(t *testing.T) {
	c1 := start.AddDate(0, 0, 60)
	c2 := start.AddDate(0, 0, 80)

	t.Run("unions and sorts", func(t *testing.T) {
		rows, dropped, err := Assemble([][]contracts.RollingDatasetRow{
			{row(c2, 2, 1), row(c2, 1, 1)},
			{row(c1, 3, 1)},
		})
		require.NoError(t, err)
		assert.Zero(t, dropped)
		require.Len(t, rows, 3)
		assert.Equal(t, contracts.RowKey{CutoffDate: c1, CustomerID: 3}, rows[0].Key())
		assert.Equal(t, contracts.RowKey{CutoffDate: c2, CustomerID: 1}, rows[1].Key())
	})

	t.Run("exact duplicates dropped", func(t *testing.T) {
		gap := 4.0
		a := row(c1, 1, 10)
		a.AvgDaysBetweenInvoices = &gap
		b := a
		same := 4.0
		b.AvgDaysBetweenInvoices = &same

		rows, dropped, err := Assemble([][]contracts.RollingDatasetRow{{a}, {b}})
		require.NoError(t, err)
		assert.Equal(t, 1, dropped)
		assert.Len(t, rows, 1)
	})

	t.Run("conflicting duplicate fails", func(t *testing.T) {
		_, _, err := Assemble([][]contracts.RollingDatasetRow{{row(c1, 1, 10)}, {row(c1, 1, 11)}})
		require.Error(t, err)
		assert.True(t, contracts.IsIntegrity(err))
	})

	t.Run("nil vs set optional differs", func(t *testing.T) {
		gap := 2.0
		a := row(c1, 1, 10)
		b := row(c1, 1, 10)
		b.AvgDaysBetweenInvoices = &gap
		_, _, err := Assemble([][]contracts.RollingDatasetRow{{a}, {b}})
		assert.True(t, contracts.IsIntegrity(err))
	})
}

func TestSummarize(t *testing.T) {
	c1 := start.AddDate(0, 0, 60)
	c2 := start.AddDate(0, 0, 80)
	churned := row(c2, 2, 0)
	churned.ChurnLabel = 1

	s := summarize([]contracts.RollingDatasetRow{row(c1, 1, 1), row(c2, 1, 1), churned}, 2)
	assert.Equal(t, 3, s.Rows)
	assert.Equal(t, 2, s.DistinctCutoffs)
	assert.Equal(t, c2, s.LatestCutoff)
	assert.Equal(t, 2, s.LatestCustomers)
	assert.Equal(t, 2, s.DuplicatesDropped)
	assert.InDelta(t, 1.0/3.0, s.ChurnRate, 1e-9)

	assert.Equal(t, Stats{}, summarize(nil, 0))
}
