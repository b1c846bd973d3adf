package contracts

import (
	"strings"
	"time"
)

// Transaction is one cleaned ledger line
type Transaction struct {
	InvoiceID  string    `json:"invoice_id"`
	CustomerID int64     `json:"customer_id"`
	SKU        string    `json:"sku"`
	Quantity   float64   `json:"quantity"`
	UnitPrice  float64   `json:"unit_price"`
	Timestamp  time.Time `json:"invoice_ts"`

	LineRevenue   float64 `json:"line_revenue"`
	GrossRevenue  float64 `json:"gross_revenue"`
	ReturnRevenue float64 `json:"return_revenue"`
	NetRevenue    float64 `json:"net_revenue"`
	IsCancelled   bool    `json:"is_cancelled"`
}

// NewTransaction derives revenue fields from quantity and unit price.
// Negative lines are returns: they count toward ReturnRevenue, never GrossRevenue.
func NewTransaction(invoiceID string, customerID int64, sku string, qty, price float64, ts time.Time) Transaction {
	line := qty * price
	txn := Transaction{
		InvoiceID:   invoiceID,
		CustomerID:  customerID,
		SKU:         sku,
		Quantity:    qty,
		UnitPrice:   price,
		Timestamp:   ts,
		LineRevenue: line,
		NetRevenue:  line,
		IsCancelled: strings.HasPrefix(strings.ToUpper(invoiceID), "C"),
	}
	if line > 0 {
		txn.GrossRevenue = line
	} else if line < 0 {
		txn.ReturnRevenue = -line
	}
	return txn
}

// LedgerSpan is the min/max timestamp of the stored ledger
type LedgerSpan struct {
	Min  time.Time `json:"min"`
	Max  time.Time `json:"max"`
	Rows int64     `json:"rows"`
}
