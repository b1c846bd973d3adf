package ledger

import (
	"sort"

	"github.com/wonny/clv-retention/internal/contracts"
)

// CleanStats counts what Clean dropped
type CleanStats struct {
	Input        int `json:"input"`
	Kept         int `json:"kept"`
	ZeroQuantity int `json:"zero_quantity"`
	BadPrice     int `json:"bad_price"`
	Cancelled    int `json:"cancelled_kept"`
}

// Clean drops lines with zero quantity or a non-positive unit price and
// orders the rest by (timestamp, invoice). Cancellations are kept as returns.
func Clean(txns []contracts.Transaction) ([]contracts.Transaction, CleanStats) {
	stats := CleanStats{Input: len(txns)}
	out := make([]contracts.Transaction, 0, len(txns))

	for _, t := range txns {
		switch {
		case t.Quantity == 0:
			stats.ZeroQuantity++
			continue
		case t.UnitPrice <= 0:
			stats.BadPrice++
			continue
		}
		if t.IsCancelled {
			stats.Cancelled++
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].InvoiceID < out[j].InvoiceID
	})

	stats.Kept = len(out)
	return out, stats
}

// Span computes the min/max timestamp of txns
func Span(txns []contracts.Transaction) (contracts.LedgerSpan, bool) {
	if len(txns) == 0 {
		return contracts.LedgerSpan{}, false
	}
	span := contracts.LedgerSpan{Min: txns[0].Timestamp, Max: txns[0].Timestamp, Rows: int64(len(txns))}
	for _, t := range txns[1:] {
		if t.Timestamp.Before(span.Min) {
			span.Min = t.Timestamp
		}
		if t.Timestamp.After(span.Max) {
			span.Max = t.Timestamp
		}
	}
	return span, true
}
