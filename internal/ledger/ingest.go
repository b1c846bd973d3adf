// Package ledger reads, validates and stores the raw transaction ledger.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
)

// Source column names
const (
	ColInvoiceNo   = "InvoiceNo"
	ColStockCode   = "StockCode"
	ColQuantity    = "Quantity"
	ColInvoiceDate = "InvoiceDate"
	ColUnitPrice   = "UnitPrice"
	ColCustomerID  = "CustomerID"
)

// RequiredColumns must all be present in the CSV header
var RequiredColumns = []string{
	ColInvoiceDate,
	ColCustomerID,
	ColInvoiceNo,
	ColStockCode,
	ColQuantity,
	ColUnitPrice,
}

// Day-first layouts first; ISO as a fallback for exported warehouse dumps
var dateLayouts = []string{
	"02-01-2006 15:04",
	"02-01-2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"02-01-2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// ParseInvoiceDate parses a day-first invoice timestamp as UTC
func ParseInvoiceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

// ParseCustomerID accepts positive integer ids, also when exported as "17850.0"
func ParseCustomerID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("null customer id")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || math.IsNaN(f) || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
			return 0, fmt.Errorf("invalid customer id %q", s)
		}
		id = int64(f)
	}
	// zero is what a blank id coerces to in most exports
	if id <= 0 {
		return 0, fmt.Errorf("customer id must be positive, got %q", s)
	}
	return id, nil
}

// parseNumber coerces quantity and price. Unparsable values become 0.
func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ReadCSV parses and validates a ledger CSV. The first bad row aborts the read
// with a ValidationError naming the field and line.
func ReadCSV(r io.Reader) ([]contracts.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, contracts.NewValidationError("header", "empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}

	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, contracts.NewValidationError("header", "missing required columns: %s", strings.Join(missing, ", "))
	}

	field := func(rec []string, col string) string {
		if i := idx[col]; i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var txns []contracts.Transaction
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		ts, err := ParseInvoiceDate(field(rec, ColInvoiceDate))
		if err != nil {
			return nil, contracts.NewValidationError(ColInvoiceDate, "line %d: %v", line, err)
		}
		cust, err := ParseCustomerID(field(rec, ColCustomerID))
		if err != nil {
			return nil, contracts.NewValidationError(ColCustomerID, "line %d: %v", line, err)
		}

		txns = append(txns, contracts.NewTransaction(
			strings.TrimSpace(field(rec, ColInvoiceNo)),
			cust,
			strings.TrimSpace(field(rec, ColStockCode)),
			parseNumber(field(rec, ColQuantity)),
			parseNumber(field(rec, ColUnitPrice)),
			ts,
		))
	}
	return txns, nil
}
