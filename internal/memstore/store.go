// Package memstore keeps every pipeline table in memory. It backs offline
// runs (no PostgreSQL) and the tests of the packages that depend on storage.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
)

// Store implements the ledger, dataset, prediction and run repositories
type Store struct {
	mu          sync.RWMutex
	ledger      []contracts.Transaction
	dataset     map[time.Time][]contracts.RollingDatasetRow
	predictions map[time.Time][]contracts.PredictionRow
	latest      *time.Time
	runs        map[string]contracts.RunRecord
}

// New creates an empty store
func New() *Store {
	return &Store{
		dataset:     make(map[time.Time][]contracts.RollingDatasetRow),
		predictions: make(map[time.Time][]contracts.PredictionRow),
		runs:        make(map[string]contracts.RunRecord),
	}
}

// Ledger adapts the store to the ledger interfaces
func (s *Store) Ledger() *Ledger { return &Ledger{s} }

// Dataset adapts the store to the rolling dataset interfaces
func (s *Store) Dataset() *Dataset { return &Dataset{s} }

// Predictions adapts the store to the prediction interfaces
func (s *Store) Predictions() *Predictions { return &Predictions{s} }

// Runs adapts the store to the run recorder interface
func (s *Store) Runs() *Runs { return &Runs{s} }

// Ledger is the in-memory fact_transactions table
type Ledger struct{ s *Store }

// ReplaceAll swaps the whole table for txns, kept in timestamp order
func (l *Ledger) ReplaceAll(_ context.Context, txns []contracts.Transaction) (int64, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.ledger = append([]contracts.Transaction(nil), txns...)
	sort.SliceStable(l.s.ledger, func(i, j int) bool { return l.s.ledger[i].Timestamp.Before(l.s.ledger[j].Timestamp) })
	return int64(len(txns)), nil
}

// Span returns the first and last timestamps and the row count.
// An empty ledger is ErrInsufficientHistory.
func (l *Ledger) Span(_ context.Context) (contracts.LedgerSpan, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	if len(l.s.ledger) == 0 {
		return contracts.LedgerSpan{}, contracts.ErrInsufficientHistory
	}
	return contracts.LedgerSpan{
		Min:  l.s.ledger[0].Timestamp,
		Max:  l.s.ledger[len(l.s.ledger)-1].Timestamp,
		Rows: int64(len(l.s.ledger)),
	}, nil
}

// LoadRange returns transactions with from <= timestamp < to
func (l *Ledger) LoadRange(_ context.Context, from, to time.Time) ([]contracts.Transaction, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	var out []contracts.Transaction
	for _, t := range l.s.ledger {
		if !t.Timestamp.Before(from) && t.Timestamp.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Dataset is the in-memory rolling_dataset table
type Dataset struct{ s *Store }

// ReplacePartition overwrites the rows of one cutoff
func (d *Dataset) ReplacePartition(_ context.Context, cutoff time.Time, rows []contracts.RollingDatasetRow) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.dataset[cutoff] = append([]contracts.RollingDatasetRow(nil), rows...)
	return nil
}

// LoadAll returns every partition in cutoff order
func (d *Dataset) LoadAll(ctx context.Context) ([]contracts.RollingDatasetRow, error) {
	cutoffs, _ := d.Cutoffs(ctx)
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	var out []contracts.RollingDatasetRow
	for _, c := range cutoffs {
		out = append(out, d.s.dataset[c]...)
	}
	return out, nil
}

// LoadCutoff returns one partition, or ErrNotFound
func (d *Dataset) LoadCutoff(_ context.Context, cutoff time.Time) ([]contracts.RollingDatasetRow, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	rows, ok := d.s.dataset[cutoff]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return append([]contracts.RollingDatasetRow(nil), rows...), nil
}

// Cutoffs lists the stored cutoffs, oldest first
func (d *Dataset) Cutoffs(_ context.Context) ([]time.Time, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	out := make([]time.Time, 0, len(d.s.dataset))
	for c := range d.s.dataset {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Predictions is the in-memory predictions table plus the latest pointer
type Predictions struct{ s *Store }

// ReplacePartition overwrites the predictions of one cutoff.
// The latest pointer is not touched.
func (p *Predictions) ReplacePartition(_ context.Context, cutoff time.Time, rows []contracts.PredictionRow) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.predictions[cutoff] = append([]contracts.PredictionRow(nil), rows...)
	return nil
}

// Columns reports the prediction table schema
func (p *Predictions) Columns(_ context.Context) ([]string, error) {
	return contracts.PredictionColumns(), nil
}

// SetLatest points "latest" at cutoff, which must already have a partition
func (p *Predictions) SetLatest(_ context.Context, cutoff time.Time) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.predictions[cutoff]; !ok {
		return contracts.NewIntegrityError("latest_pointer", "no partition for %s", contracts.FormatDate(cutoff))
	}
	c := cutoff
	p.s.latest = &c
	return nil
}

// LatestCutoff returns the pointer, or ErrNotFound before the first publish
func (p *Predictions) LatestCutoff(_ context.Context) (time.Time, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	if p.s.latest == nil {
		return time.Time{}, contracts.ErrNotFound
	}
	return *p.s.latest, nil
}

// Latest returns the latest partition ordered by customer id
func (p *Predictions) Latest(ctx context.Context) ([]contracts.PredictionRow, error) {
	cutoff, err := p.LatestCutoff(ctx)
	if err != nil {
		return nil, err
	}
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	rows := append([]contracts.PredictionRow(nil), p.s.predictions[cutoff]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].CustomerID < rows[j].CustomerID })
	return rows, nil
}

// TopN ranks the latest partition by metric, highest first
func (p *Predictions) TopN(ctx context.Context, metric string, n int) ([]contracts.PredictionRow, error) {
	if !contracts.IsRankingMetric(metric) {
		return nil, contracts.NewValidationError("by", "unsupported metric %q", metric)
	}
	if n <= 0 {
		return nil, contracts.NewValidationError("n", "must be > 0, got %d", n)
	}
	rows, err := p.Latest(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i].Metric(metric)
		b, _ := rows[j].Metric(metric)
		return a > b
	})
	if n < len(rows) {
		rows = rows[:n]
	}
	return rows, nil
}

// Summary aggregates the latest partition
func (p *Predictions) Summary(ctx context.Context) (*contracts.PredictionSummary, error) {
	cutoff, err := p.LatestCutoff(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := p.Latest(ctx)
	if err != nil {
		return nil, err
	}
	s := contracts.Summarize(cutoff, rows)
	return &s, nil
}

// Runs is the in-memory run log
type Runs struct{ s *Store }

// StartRun records a run in its initial state
func (r *Runs) StartRun(_ context.Context, run *contracts.RunRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.runs[run.RunID] = *run
	return nil
}

// FinishRun overwrites the run with its final state
func (r *Runs) FinishRun(_ context.Context, run *contracts.RunRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.runs[run.RunID] = *run
	return nil
}

// Get returns a recorded run
func (r *Runs) Get(runID string) (contracts.RunRecord, bool) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	run, ok := r.s.runs[runID]
	return run, ok
}
