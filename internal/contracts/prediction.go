package contracts

import (
	"math"
	"time"
)

// PredictionRow is the scored output for one customer at one cutoff.
// ⭐ SSOT: expected_* 파생 공식은 NewPredictionRow에서만 계산
type PredictionRow struct {
	CutoffDate         time.Time `json:"cutoff_date"`
	CustomerID         int64     `json:"customer_id"`
	ChurnProb          float64   `json:"churn_prob"`
	SpendProb          float64   `json:"spend_prob"`
	PredRevenueIfSpend float64   `json:"pred_revenue_if_spend"`
	ExpectedRevenue    float64   `json:"expected_revenue"`
	ExpectedCLV        float64   `json:"expected_clv"`
	ExpectedLoss       float64   `json:"expected_loss"`
}

// NewPredictionRow derives the expected value fields:
//
//	expected_revenue = spend_prob * pred_revenue_if_spend
//	expected_clv     = (1 - churn_prob) * expected_revenue
//	expected_loss    = churn_prob * expected_revenue
func NewPredictionRow(key RowKey, churnProb, spendProb, revenueIfSpend float64) PredictionRow {
	churnProb = clamp01(churnProb)
	spendProb = clamp01(spendProb)
	if math.IsNaN(revenueIfSpend) || revenueIfSpend < 0 {
		revenueIfSpend = 0
	}

	expected := spendProb * revenueIfSpend
	return PredictionRow{
		CutoffDate:         key.CutoffDate,
		CustomerID:         key.CustomerID,
		ChurnProb:          churnProb,
		SpendProb:          spendProb,
		PredRevenueIfSpend: revenueIfSpend,
		ExpectedRevenue:    expected,
		ExpectedCLV:        (1 - churnProb) * expected,
		ExpectedLoss:       churnProb * expected,
	}
}

// PredictionColumns lists the stored prediction columns in table order
func PredictionColumns() []string {
	return []string{
		"cutoff_date", "customer_id", "churn_prob", "spend_prob", "pred_revenue_if_spend",
		MetricExpectedRevenue, MetricExpectedCLV, MetricExpectedLoss,
	}
}

// Key returns the (cutoff, customer) key
func (p PredictionRow) Key() RowKey {
	return RowKey{CutoffDate: p.CutoffDate, CustomerID: p.CustomerID}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Metric names that may be used to order predictions.
// Identifiers outside this set never reach a query.
const (
	MetricExpectedLoss    = "expected_loss"
	MetricExpectedCLV     = "expected_clv"
	MetricExpectedRevenue = "expected_revenue"
	MetricChurnProb       = "churn_prob"
)

// RankingMetrics lists the allowed ordering metrics
func RankingMetrics() []string {
	return []string{MetricExpectedLoss, MetricExpectedCLV, MetricExpectedRevenue, MetricChurnProb}
}

// IsRankingMetric reports whether m is an allowed ordering metric
func IsRankingMetric(m string) bool {
	for _, allowed := range RankingMetrics() {
		if m == allowed {
			return true
		}
	}
	return false
}

// Metric returns the value of an allowed ordering metric
func (p PredictionRow) Metric(m string) (float64, bool) {
	switch m {
	case MetricExpectedLoss:
		return p.ExpectedLoss, true
	case MetricExpectedCLV:
		return p.ExpectedCLV, true
	case MetricExpectedRevenue:
		return p.ExpectedRevenue, true
	case MetricChurnProb:
		return p.ChurnProb, true
	}
	return 0, false
}

// PredictionSummary aggregates the latest prediction partition
type PredictionSummary struct {
	CutoffDate         time.Time `json:"cutoff_date"`
	Rows               int       `json:"rows"`
	AvgChurnProb       float64   `json:"avg_churn_prob"`
	AvgSpendProb       float64   `json:"avg_spend_prob"`
	SumExpectedRevenue float64   `json:"sum_expected_revenue"`
	SumExpectedCLV     float64   `json:"sum_expected_clv"`
	SumExpectedLoss    float64   `json:"sum_expected_loss"`
}

// Summarize computes a PredictionSummary over rows
func Summarize(cutoff time.Time, rows []PredictionRow) PredictionSummary {
	s := PredictionSummary{CutoffDate: cutoff, Rows: len(rows)}
	if len(rows) == 0 {
		return s
	}
	for _, r := range rows {
		s.AvgChurnProb += r.ChurnProb
		s.AvgSpendProb += r.SpendProb
		s.SumExpectedRevenue += r.ExpectedRevenue
		s.SumExpectedCLV += r.ExpectedCLV
		s.SumExpectedLoss += r.ExpectedLoss
	}
	n := float64(len(rows))
	s.AvgChurnProb /= n
	s.AvgSpendProb /= n
	return s
}
