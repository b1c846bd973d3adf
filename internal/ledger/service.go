package ledger

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/logger"
)

// IngestResult summarizes one ingestion
type IngestResult struct {
	Path     string               `json:"path"`
	Clean    CleanStats           `json:"clean"`
	Inserted int64                `json:"inserted"`
	Span     contracts.LedgerSpan `json:"span"`
	Duration time.Duration        `json:"duration"`
}

// Ingester loads a CSV ledger into the store
type Ingester struct {
	writer contracts.LedgerWriter
	log    *logger.Logger
}

// NewIngester creates a new ingester
func NewIngester(writer contracts.LedgerWriter, log *logger.Logger) *Ingester {
	return &Ingester{writer: writer, log: log}
}

// IngestFile validates path, cleans the lines and replaces the stored ledger.
// Nothing is written when validation fails.
func (i *Ingester) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger csv: %w", err)
	}
	defer f.Close()

	raw, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", path, err)
	}

	txns, stats := Clean(raw)
	span, ok := Span(txns)
	if !ok {
		return nil, contracts.NewValidationError("rows", "no usable transactions in %s", path)
	}

	inserted, err := i.writer.ReplaceAll(ctx, txns)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{
		Path:     path,
		Clean:    stats,
		Inserted: inserted,
		Span:     span,
		Duration: time.Since(start),
	}

	i.log.WithFields(map[string]interface{}{
		"path":          path,
		"input":         stats.Input,
		"kept":          stats.Kept,
		"zero_quantity": stats.ZeroQuantity,
		"bad_price":     stats.BadPrice,
		"min_date":      contracts.FormatDate(span.Min),
		"max_date":      contracts.FormatDate(span.Max),
	}).Info("Ledger ingested")

	return result, nil
}
