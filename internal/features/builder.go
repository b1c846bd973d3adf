// Package features turns a window's transactions into per-customer
// observation features and prediction-window labels.
package features

import (
	"sort"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
)

// Recent rollup horizons, counted back from the observation end
const (
	shortHorizonDays = 30
	longHorizonDays  = 90
)

// Snapshot is the feature and label table of one window
type Snapshot struct {
	Window   contracts.Window
	Features []contracts.CustomerFeatureRow
	Labels   []contracts.CustomerLabelRow
}

// Builder computes features and labels for one window
type Builder struct{}

// NewBuilder creates a feature/label builder
func NewBuilder() *Builder {
	return &Builder{}
}

type customerAgg struct {
	row        contracts.CustomerFeatureRow
	invoices   map[string]time.Time // invoice -> earliest line timestamp
	activeDays map[time.Time]struct{}
	recent30   map[string]struct{}
	recent90   map[string]struct{}
}

// Build reads only [ObsStart, ObsEnd) for features and [PredStart, PredEnd)
// for labels. Transactions outside both intervals, including the gap, are ignored.
func (b *Builder) Build(w contracts.Window, txns []contracts.Transaction) (*Snapshot, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	since30 := w.ObsEnd.AddDate(0, 0, -shortHorizonDays)
	since90 := w.ObsEnd.AddDate(0, 0, -longHorizonDays)

	aggs := make(map[int64]*customerAgg)
	for _, t := range txns {
		if !w.InObservation(t.Timestamp) {
			continue
		}

		a, ok := aggs[t.CustomerID]
		if !ok {
			a = &customerAgg{
				row: contracts.CustomerFeatureRow{
					CutoffDate:       w.CutoffDate,
					CustomerID:       t.CustomerID,
					FirstPurchaseObs: t.Timestamp,
					LastPurchaseObs:  t.Timestamp,
				},
				invoices:   make(map[string]time.Time),
				activeDays: make(map[time.Time]struct{}),
				recent30:   make(map[string]struct{}),
				recent90:   make(map[string]struct{}),
			}
			aggs[t.CustomerID] = a
		}

		r := &a.row
		r.TxnCountObs++
		r.GrossRevenueObs += t.GrossRevenue
		r.ReturnRevenueObs += t.ReturnRevenue
		r.NetRevenueObs += t.NetRevenue
		if t.Timestamp.Before(r.FirstPurchaseObs) {
			r.FirstPurchaseObs = t.Timestamp
		}
		if t.Timestamp.After(r.LastPurchaseObs) {
			r.LastPurchaseObs = t.Timestamp
		}

		if first, seen := a.invoices[t.InvoiceID]; !seen || t.Timestamp.Before(first) {
			a.invoices[t.InvoiceID] = t.Timestamp
		}
		a.activeDays[contracts.Day(t.Timestamp)] = struct{}{}

		if !t.Timestamp.Before(since30) {
			r.TxnCount30d++
			r.NetRevenue30d += t.NetRevenue
			a.recent30[t.InvoiceID] = struct{}{}
		}
		if !t.Timestamp.Before(since90) {
			r.TxnCount90d++
			r.NetRevenue90d += t.NetRevenue
			a.recent90[t.InvoiceID] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(aggs))
	for id := range aggs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	snap := &Snapshot{
		Window:   w,
		Features: make([]contracts.CustomerFeatureRow, 0, len(ids)),
		Labels:   make([]contracts.CustomerLabelRow, 0, len(ids)),
	}
	for _, id := range ids {
		snap.Features = append(snap.Features, finalize(aggs[id], w))
	}

	snap.Labels = buildLabels(w, snap.Features, txns)
	return snap, nil
}

func finalize(a *customerAgg, w contracts.Window) contracts.CustomerFeatureRow {
	r := a.row
	r.InvoiceCountObs = len(a.invoices)
	r.InvoiceCount30d = len(a.recent30)
	r.InvoiceCount90d = len(a.recent90)
	r.ActiveDaysObs = len(a.activeDays)
	r.AvgRevenuePerLineObs = r.NetRevenueObs / float64(r.TxnCountObs)
	r.RecencyDaysObs = contracts.DaysBetween(r.LastPurchaseObs, w.ObsEnd)
	r.TenureDaysObs = contracts.DaysBetween(r.FirstPurchaseObs, w.ObsEnd)
	r.AvgDaysBetweenInvoices = avgDaysBetween(a.invoices)

	// no gross revenue means nothing to return against
	if r.GrossRevenueObs > 0 {
		r.ReturnRatioObs = r.ReturnRevenueObs / r.GrossRevenueObs
	}
	return r
}

// avgDaysBetween averages the day gaps between successive invoice dates.
// Each invoice is dated by its earliest line. Fewer than two invoices give nil.
func avgDaysBetween(invoices map[string]time.Time) *float64 {
	if len(invoices) < 2 {
		return nil
	}

	dates := make([]time.Time, 0, len(invoices))
	for _, ts := range invoices {
		dates = append(dates, contracts.Day(ts))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	total := 0
	for i := 1; i < len(dates); i++ {
		total += contracts.DaysBetween(dates[i-1], dates[i])
	}
	avg := float64(total) / float64(len(dates)-1)
	return &avg
}

// buildLabels left-joins the observation customers to the prediction window
func buildLabels(w contracts.Window, feats []contracts.CustomerFeatureRow, txns []contracts.Transaction) []contracts.CustomerLabelRow {
	type outcome struct {
		lines   int
		revenue float64
	}
	outcomes := make(map[int64]*outcome, len(feats))
	for _, f := range feats {
		outcomes[f.CustomerID] = &outcome{}
	}

	for _, t := range txns {
		if !w.InPrediction(t.Timestamp) {
			continue
		}
		if o, ok := outcomes[t.CustomerID]; ok {
			o.lines++
			o.revenue += t.NetRevenue
		}
	}

	labels := make([]contracts.CustomerLabelRow, 0, len(feats))
	for _, f := range feats {
		o := outcomes[f.CustomerID]
		churn := 0
		if o.lines == 0 {
			churn = 1
		}
		labels = append(labels, contracts.CustomerLabelRow{
			CutoffDate:        w.CutoffDate,
			CustomerID:        f.CustomerID,
			ChurnLabel:        churn,
			RevenuePredWindow: o.revenue,
		})
	}
	return labels
}
