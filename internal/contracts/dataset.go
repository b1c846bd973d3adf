package contracts

import (
	"math"
	"time"
)

// RowKey identifies one customer at one cutoff
type RowKey struct {
	CutoffDate time.Time `json:"cutoff_date"`
	CustomerID int64     `json:"customer_id"`
}

// Less orders keys by (cutoff_date, customer_id)
func (k RowKey) Less(o RowKey) bool {
	if !k.CutoffDate.Equal(o.CutoffDate) {
		return k.CutoffDate.Before(o.CutoffDate)
	}
	return k.CustomerID < o.CustomerID
}

// CustomerFeatureRow holds observation-window aggregates for one customer.
// Only customers with at least one observation transaction get a row.
type CustomerFeatureRow struct {
	CutoffDate time.Time `json:"cutoff_date"`
	CustomerID int64     `json:"customer_id"`

	TxnCountObs          int     `json:"txn_count_obs"`
	InvoiceCountObs      int     `json:"invoice_count_obs"`
	GrossRevenueObs      float64 `json:"gross_revenue_obs"`
	ReturnRevenueObs     float64 `json:"return_revenue_obs"`
	NetRevenueObs        float64 `json:"net_revenue_obs"`
	AvgRevenuePerLineObs float64 `json:"avg_revenue_per_line_obs"`

	FirstPurchaseObs time.Time `json:"first_purchase_obs"`
	LastPurchaseObs  time.Time `json:"last_purchase_obs"`
	RecencyDaysObs   int       `json:"recency_days_obs"`
	TenureDaysObs    int       `json:"tenure_days_obs"`
	ActiveDaysObs    int       `json:"active_days_obs"`

	InvoiceCount30d int     `json:"invoice_count_30d"`
	InvoiceCount90d int     `json:"invoice_count_90d"`
	TxnCount30d     int     `json:"txn_count_30d"`
	TxnCount90d     int     `json:"txn_count_90d"`
	NetRevenue30d   float64 `json:"net_revenue_30d"`
	NetRevenue90d   float64 `json:"net_revenue_90d"`

	// nil when the customer has fewer than two invoices
	AvgDaysBetweenInvoices *float64 `json:"avg_days_between_invoices"`
	ReturnRatioObs         float64  `json:"return_ratio_obs"`
}

// Key returns the (cutoff, customer) key
func (f CustomerFeatureRow) Key() RowKey {
	return RowKey{CutoffDate: f.CutoffDate, CustomerID: f.CustomerID}
}

// CustomerLabelRow holds prediction-window outcomes for one customer
type CustomerLabelRow struct {
	CutoffDate        time.Time `json:"cutoff_date"`
	CustomerID        int64     `json:"customer_id"`
	ChurnLabel        int       `json:"churn_label"`
	RevenuePredWindow float64   `json:"revenue_pred_window"`
}

// Key returns the (cutoff, customer) key
func (l CustomerLabelRow) Key() RowKey {
	return RowKey{CutoffDate: l.CutoffDate, CustomerID: l.CustomerID}
}

// RollingDatasetRow is one training example: features joined to labels
type RollingDatasetRow struct {
	CustomerFeatureRow
	ChurnLabel        int     `json:"churn_label"`
	RevenuePredWindow float64 `json:"revenue_pred_window"`
}

// Spent reports whether the customer had positive revenue in the prediction window
func (r RollingDatasetRow) Spent() bool {
	return r.RevenuePredWindow > 0
}

// Feature column names, in model input order.
// ⭐ SSOT: 모델 입력 컬럼 순서는 여기서만 정의
const (
	ColTxnCountObs            = "txn_count_obs"
	ColInvoiceCountObs        = "invoice_count_obs"
	ColGrossRevenueObs        = "gross_revenue_obs"
	ColReturnRevenueObs       = "return_revenue_obs"
	ColNetRevenueObs          = "net_revenue_obs"
	ColAvgRevenuePerLineObs   = "avg_revenue_per_line_obs"
	ColRecencyDaysObs         = "recency_days_obs"
	ColTenureDaysObs          = "tenure_days_obs"
	ColActiveDaysObs          = "active_days_obs"
	ColInvoiceCount30d        = "invoice_count_30d"
	ColInvoiceCount90d        = "invoice_count_90d"
	ColTxnCount30d            = "txn_count_30d"
	ColTxnCount90d            = "txn_count_90d"
	ColNetRevenue30d          = "net_revenue_30d"
	ColNetRevenue90d          = "net_revenue_90d"
	ColAvgDaysBetweenInvoices = "avg_days_between_invoices"
	ColReturnRatioObs         = "return_ratio_obs"
)

// FeatureColumns returns a fresh copy of the ordered feature list
func FeatureColumns() []string {
	return []string{
		ColTxnCountObs,
		ColInvoiceCountObs,
		ColGrossRevenueObs,
		ColReturnRevenueObs,
		ColNetRevenueObs,
		ColAvgRevenuePerLineObs,
		ColRecencyDaysObs,
		ColTenureDaysObs,
		ColActiveDaysObs,
		ColInvoiceCount30d,
		ColInvoiceCount90d,
		ColTxnCount30d,
		ColTxnCount90d,
		ColNetRevenue30d,
		ColNetRevenue90d,
		ColAvgDaysBetweenInvoices,
		ColReturnRatioObs,
	}
}

// IsFeatureColumn reports whether name is a known feature column
func IsFeatureColumn(name string) bool {
	_, ok := CustomerFeatureRow{}.Value(name)
	return ok
}

// Value returns the numeric value of a feature column.
// A nil optional feature is NaN. ok is false for unknown columns.
func (f CustomerFeatureRow) Value(col string) (v float64, ok bool) {
	switch col {
	case ColTxnCountObs:
		return float64(f.TxnCountObs), true
	case ColInvoiceCountObs:
		return float64(f.InvoiceCountObs), true
	case ColGrossRevenueObs:
		return f.GrossRevenueObs, true
	case ColReturnRevenueObs:
		return f.ReturnRevenueObs, true
	case ColNetRevenueObs:
		return f.NetRevenueObs, true
	case ColAvgRevenuePerLineObs:
		return f.AvgRevenuePerLineObs, true
	case ColRecencyDaysObs:
		return float64(f.RecencyDaysObs), true
	case ColTenureDaysObs:
		return float64(f.TenureDaysObs), true
	case ColActiveDaysObs:
		return float64(f.ActiveDaysObs), true
	case ColInvoiceCount30d:
		return float64(f.InvoiceCount30d), true
	case ColInvoiceCount90d:
		return float64(f.InvoiceCount90d), true
	case ColTxnCount30d:
		return float64(f.TxnCount30d), true
	case ColTxnCount90d:
		return float64(f.TxnCount90d), true
	case ColNetRevenue30d:
		return f.NetRevenue30d, true
	case ColNetRevenue90d:
		return f.NetRevenue90d, true
	case ColAvgDaysBetweenInvoices:
		if f.AvgDaysBetweenInvoices == nil {
			return math.NaN(), true
		}
		return *f.AvgDaysBetweenInvoices, true
	case ColReturnRatioObs:
		return f.ReturnRatioObs, true
	}
	return 0, false
}

// Vector projects the row onto cols. Unknown columns are NaN.
func (f CustomerFeatureRow) Vector(cols []string) []float64 {
	out := make([]float64, len(cols))
	for i, c := range cols {
		v, ok := f.Value(c)
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}
