// Package rolling builds the multi-cutoff training table: one feature/label
// snapshot per cutoff, unioned and checked for key uniqueness.
package rolling

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/features"
	"github.com/wonny/clv-retention/internal/window"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
)

// Params controls cutoff enumeration and parallelism
type Params struct {
	Durations window.Durations
	StepDays  int
	Workers   int
}

// Stats describes an assembled dataset
type Stats struct {
	Rows              int       `json:"rows"`
	DistinctCutoffs   int       `json:"distinct_cutoffs"`
	LatestCutoff      time.Time `json:"latest_cutoff"`
	LatestCustomers   int       `json:"latest_customers"`
	DuplicatesDropped int       `json:"duplicates_dropped"`
	ChurnRate         float64   `json:"churn_rate"`
}

// Result is the assembled rolling dataset, ordered by (cutoff_date, customer_id)
type Result struct {
	Cutoffs []time.Time
	Rows    []contracts.RollingDatasetRow
	Stats   Stats
}

// Assembler runs the Feature/Label Builder for every cutoff
type Assembler struct {
	ledger   contracts.LedgerReader
	writer   contracts.DatasetWriter
	builder  *features.Builder
	log      *logger.Logger
	metrics  *metrics.Registry
	progress io.Writer
}

// Option configures an Assembler
type Option func(*Assembler)

// WithMetrics reports cutoff counts and row totals to reg
func WithMetrics(reg *metrics.Registry) Option {
	return func(a *Assembler) { a.metrics = reg }
}

// WithProgress renders a progress bar on w while cutoffs are built
func WithProgress(w io.Writer) Option {
	return func(a *Assembler) { a.progress = w }
}

// NewAssembler creates an assembler. writer may be nil to skip persistence.
func NewAssembler(ledger contracts.LedgerReader, writer contracts.DatasetWriter, log *logger.Logger, opts ...Option) *Assembler {
	a := &Assembler{
		ledger:  ledger,
		writer:  writer,
		builder: features.NewBuilder(),
		log:     log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build enumerates cutoffs over the stored ledger, builds every cutoff
// concurrently, then unions and validates the result before persisting
// any partition. A ledger too short for one cutoff returns
// contracts.ErrInsufficientHistory.
func (a *Assembler) Build(ctx context.Context, p Params) (*Result, error) {
	span, err := a.ledger.Span(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger span: %w", err)
	}

	cutoffs, err := window.EnumerateCutoffs(span.Min, span.Max, p.Durations, p.StepDays)
	if err != nil {
		return nil, err
	}
	if len(cutoffs) == 0 {
		need := p.Durations.ObservationDays + p.Durations.GapDays + p.Durations.PredictionDays
		return nil, fmt.Errorf("%w: ledger spans %s..%s (%d days), need at least %d",
			contracts.ErrInsufficientHistory,
			contracts.FormatDate(span.Min), contracts.FormatDate(span.Max),
			contracts.DaysBetween(span.Min, span.Max), need)
	}

	a.log.WithFields(map[string]interface{}{
		"cutoffs":   len(cutoffs),
		"first":     contracts.FormatDate(cutoffs[0]),
		"last":      contracts.FormatDate(cutoffs[len(cutoffs)-1]),
		"step_days": p.StepDays,
		"workers":   p.Workers,
	}).Info("Starting rolling dataset build")

	perCutoff, err := a.buildAll(ctx, cutoffs, p)
	if err != nil {
		return nil, err
	}

	rows, dropped, err := Assemble(perCutoff)
	if err != nil {
		return nil, err
	}

	if a.writer != nil {
		for i, c := range cutoffs {
			if err := a.writer.ReplacePartition(ctx, c, perCutoff[i]); err != nil {
				return nil, fmt.Errorf("persist cutoff %s: %w", contracts.FormatDate(c), err)
			}
		}
	}

	result := &Result{Cutoffs: cutoffs, Rows: rows, Stats: summarize(rows, dropped)}
	if a.metrics != nil {
		a.metrics.RollingRows.Set(float64(len(rows)))
	}

	a.log.WithFields(map[string]interface{}{
		"rows":               result.Stats.Rows,
		"distinct_cutoffs":   result.Stats.DistinctCutoffs,
		"latest_customers":   result.Stats.LatestCustomers,
		"duplicates_dropped": dropped,
		"churn_rate":         result.Stats.ChurnRate,
	}).Info("Rolling dataset built")

	return result, nil
}

// buildAll runs one builder per cutoff on a bounded worker pool.
// The output keeps cutoff order regardless of completion order.
func (a *Assembler) buildAll(ctx context.Context, cutoffs []time.Time, p Params) ([][]contracts.RollingDatasetRow, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	var bar *progressbar.ProgressBar
	if a.progress != nil {
		bar = progressbar.NewOptions(len(cutoffs),
			progressbar.OptionSetWriter(a.progress),
			progressbar.OptionSetDescription("cutoffs"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	out := make([][]contracts.RollingDatasetRow, len(cutoffs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, c := range cutoffs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rows, err := a.buildCutoff(gctx, c, p.Durations)
			if err != nil {
				return fmt.Errorf("cutoff %s: %w", contracts.FormatDate(c), err)
			}
			out[i] = rows

			if bar != nil {
				_ = bar.Add(1)
			}
			if a.metrics != nil {
				a.metrics.RollingCutoffs.Inc()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return out, nil
}

func (a *Assembler) buildCutoff(ctx context.Context, cutoff time.Time, d window.Durations) ([]contracts.RollingDatasetRow, error) {
	w, err := window.FromCutoff(cutoff, d)
	if err != nil {
		return nil, err
	}

	txns, err := a.ledger.LoadRange(ctx, w.ObsStart, w.PredEnd)
	if err != nil {
		return nil, err
	}

	snap, err := a.builder.Build(w, txns)
	if err != nil {
		return nil, err
	}

	rows, err := snap.Join()
	if err != nil {
		return nil, err
	}

	a.log.WithFields(map[string]interface{}{
		"cutoff_date":  contracts.FormatDate(cutoff),
		"transactions": len(txns),
		"customers":    len(rows),
	}).Debug("Cutoff built")
	return rows, nil
}

// Assemble unions per-cutoff tables, drops exact duplicate rows and fails
// on any remaining (cutoff_date, customer_id) collision.
func Assemble(parts [][]contracts.RollingDatasetRow) ([]contracts.RollingDatasetRow, int, error) {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	seen := make(map[contracts.RowKey]contracts.RollingDatasetRow, total)
	rows := make([]contracts.RollingDatasetRow, 0, total)
	dropped := 0

	for _, part := range parts {
		for _, r := range part {
			key := r.Key()
			prev, ok := seen[key]
			if !ok {
				seen[key] = r
				rows = append(rows, r)
				continue
			}
			if sameRow(prev, r) {
				dropped++
				continue
			}
			return nil, dropped, contracts.NewIntegrityError("rolling_unique",
				"customer %d appears twice at cutoff %s with different values",
				key.CustomerID, contracts.FormatDate(key.CutoffDate))
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Key().Less(rows[j].Key()) })
	return rows, dropped, nil
}

func sameRow(a, b contracts.RollingDatasetRow) bool {
	pa, pb := a.AvgDaysBetweenInvoices, b.AvgDaysBetweenInvoices
	if (pa == nil) != (pb == nil) || (pa != nil && *pa != *pb) {
		return false
	}
	a.AvgDaysBetweenInvoices, b.AvgDaysBetweenInvoices = nil, nil
	return a == b
}

func summarize(rows []contracts.RollingDatasetRow, dropped int) Stats {
	s := Stats{Rows: len(rows), DuplicatesDropped: dropped}
	if len(rows) == 0 {
		return s
	}

	churned := 0
	distinct := 0
	var prev time.Time
	for i, r := range rows {
		if i == 0 || !r.CutoffDate.Equal(prev) {
			distinct++
			prev = r.CutoffDate
			s.LatestCustomers = 0
		}
		s.LatestCustomers++
		churned += r.ChurnLabel
	}
	s.DistinctCutoffs = distinct
	s.LatestCutoff = prev
	s.ChurnRate = float64(churned) / float64(len(rows))
	return s
}

// Cutoffs returns the distinct cutoffs of rows in ascending order
func Cutoffs(rows []contracts.RollingDatasetRow) []time.Time {
	set := make(map[time.Time]struct{})
	for _, r := range rows {
		set[r.CutoffDate] = struct{}{}
	}
	out := make([]time.Time, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// AtCutoff filters rows to a single cutoff
func AtCutoff(rows []contracts.RollingDatasetRow, cutoff time.Time) []contracts.RollingDatasetRow {
	var out []contracts.RollingDatasetRow
	for _, r := range rows {
		if r.CutoffDate.Equal(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
