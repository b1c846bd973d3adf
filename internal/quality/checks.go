// Package quality validates the prediction store and measures feature
// drift and probability calibration.
package quality

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/clv-retention/internal/contracts"
)

// RequiredPredictionColumns must exist in any latest predictions table
func RequiredPredictionColumns() []string {
	return []string{
		"customer_id",
		contracts.MetricChurnProb,
		contracts.MetricExpectedRevenue,
		contracts.MetricExpectedCLV,
		contracts.MetricExpectedLoss,
	}
}

// ValidatePredictionStore fails on a missing column, a duplicate customer
// or a negative expected value. Nothing is corrected.
func ValidatePredictionStore(columns []string, rows []contracts.PredictionRow) error {
	have := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		have[c] = struct{}{}
	}
	var missing []string
	for _, c := range RequiredPredictionColumns() {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return contracts.NewIntegrityError("prediction_columns", "missing columns %v", missing)
	}

	seen := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.CustomerID]; dup {
			return contracts.NewIntegrityError("prediction_unique", "duplicate customer %d in latest predictions", r.CustomerID)
		}
		seen[r.CustomerID] = struct{}{}

		if r.ExpectedRevenue < 0 || r.ExpectedCLV < 0 || r.ExpectedLoss < 0 {
			return contracts.NewIntegrityError("prediction_non_negative",
				"customer %d has a negative expected value (revenue=%v clv=%v loss=%v)",
				r.CustomerID, r.ExpectedRevenue, r.ExpectedCLV, r.ExpectedLoss)
		}
	}
	return nil
}

// psiFloor replaces empty bin shares so the log term stays finite
const psiFloor = 1e-6

// PSI is the population stability index of current against reference,
// binned at reference quantiles with open outer edges. It is NaN when
// either sample is empty.
func PSI(reference, current []float64, bins int) float64 {
	if len(reference) == 0 || len(current) == 0 || bins < 1 {
		return math.NaN()
	}

	sorted := append([]float64(nil), reference...)
	sort.Float64s(sorted)

	breaks := make([]float64, bins+1)
	for i := 1; i < bins; i++ {
		breaks[i] = stat.Quantile(float64(i)/float64(bins), stat.Empirical, sorted, nil)
	}
	breaks[0], breaks[bins] = math.Inf(-1), math.Inf(1)

	e := histogram(reference, breaks)
	a := histogram(current, breaks)

	psi := 0.0
	for i := range e {
		ep := share(e[i], len(reference))
		ap := share(a[i], len(current))
		psi += (ap - ep) * math.Log(ap/ep)
	}
	return psi
}

// histogram counts values into [breaks[i], breaks[i+1]) bins
func histogram(values, breaks []float64) []int {
	counts := make([]int, len(breaks)-1)
	for _, v := range values {
		// last break <= v
		i := sort.Search(len(breaks), func(k int) bool { return breaks[k] > v }) - 1
		i = min(max(i, 0), len(counts)-1)
		counts[i]++
	}
	return counts
}

func share(count, total int) float64 {
	if count == 0 {
		return psiFloor
	}
	return float64(count) / float64(total)
}

// DefaultDriftFeatures are monitored when no list is configured
func DefaultDriftFeatures() []string {
	return []string{contracts.ColNetRevenueObs, contracts.ColTxnCountObs, contracts.ColRecencyDaysObs}
}

// DriftReport computes PSI per feature between the training rows and the
// latest rows. Missing values count as 0; an undefined PSI is reported as 0.
func DriftReport(train, latest []contracts.RollingDatasetRow, features []string, bins int) (map[string]float64, error) {
	for _, f := range features {
		if !contracts.IsFeatureColumn(f) {
			return nil, contracts.NewValidationError("quality.drift_features", "unknown feature %q", f)
		}
	}

	out := make(map[string]float64, len(features))
	for _, f := range features {
		psi := PSI(column(train, f), column(latest, f), bins)
		if math.IsNaN(psi) || math.IsInf(psi, 0) {
			psi = 0
		}
		out[f] = psi
	}
	return out, nil
}

func column(rows []contracts.RollingDatasetRow, col string) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		v, _ := r.Value(col)
		if math.IsNaN(v) {
			v = 0
		}
		out[i] = v
	}
	return out
}

// CalibrationBin is one point of the reliability curve
type CalibrationBin struct {
	MeanPredicted float64 `json:"mean_pred"`
	FractionPos   float64 `json:"frac_pos"`
	Count         int     `json:"count"`
}

// CalibrationReport is the Brier score plus a quantile-binned reliability curve
type CalibrationReport struct {
	Brier float64          `json:"brier"`
	Curve []CalibrationBin `json:"curve"`
	Rows  int              `json:"rows"`
}

// Calibration bins probabilities at their own quantiles and compares the
// mean prediction with the observed positive rate in every non-empty bin.
func Calibration(yTrue []int, probs []float64, bins int) (*CalibrationReport, error) {
	if len(yTrue) != len(probs) {
		return nil, contracts.NewValidationError("probs", "length %d does not match labels %d", len(probs), len(yTrue))
	}
	if bins < 1 {
		return nil, contracts.NewValidationError("quality.calibration_bins", "must be >= 1, got %d", bins)
	}

	r := &CalibrationReport{Rows: len(yTrue)}
	if len(yTrue) == 0 {
		return r, nil
	}

	for i, p := range probs {
		d := p - float64(yTrue[i])
		r.Brier += d * d
	}
	r.Brier /= float64(len(probs))

	sorted := append([]float64(nil), probs...)
	sort.Float64s(sorted)
	inner := make([]float64, 0, bins-1)
	for k := 1; k < bins; k++ {
		inner = append(inner, stat.Quantile(float64(k)/float64(bins), stat.Empirical, sorted, nil))
	}

	sumP := make([]float64, bins)
	sumY := make([]float64, bins)
	count := make([]int, bins)
	for i, p := range probs {
		b := sort.Search(len(inner), func(k int) bool { return inner[k] > p })
		sumP[b] += p
		sumY[b] += float64(yTrue[i])
		count[b]++
	}

	for b := range count {
		if count[b] == 0 {
			continue
		}
		n := float64(count[b])
		r.Curve = append(r.Curve, CalibrationBin{MeanPredicted: sumP[b] / n, FractionPos: sumY[b] / n, Count: count[b]})
	}
	return r, nil
}

// ThresholdReport summarises the churn probability distribution
type ThresholdReport struct {
	Quantiles  map[string]float64 `json:"quantiles"`
	PctAbove05 float64            `json:"pct_above_0.5"`
	PctAbove07 float64            `json:"pct_above_0.7"`
}

var thresholdQuantiles = []float64{0.1, 0.25, 0.5, 0.75, 0.9}

// ThresholdSanity reports quantiles and the share of probabilities above 0.5 and 0.7
func ThresholdSanity(probs []float64) ThresholdReport {
	r := ThresholdReport{Quantiles: make(map[string]float64, len(thresholdQuantiles))}
	if len(probs) == 0 {
		return r
	}

	sorted := append([]float64(nil), probs...)
	sort.Float64s(sorted)
	for _, q := range thresholdQuantiles {
		r.Quantiles[formatQuantile(q)] = stat.Quantile(q, stat.LinInterp, sorted, nil)
	}

	var above05, above07 int
	for _, p := range probs {
		if p > 0.5 {
			above05++
		}
		if p > 0.7 {
			above07++
		}
	}
	r.PctAbove05 = float64(above05) / float64(len(probs))
	r.PctAbove07 = float64(above07) / float64(len(probs))
	return r
}

func formatQuantile(q float64) string {
	switch q {
	case 0.1:
		return "0.1"
	case 0.25:
		return "0.25"
	case 0.5:
		return "0.5"
	case 0.75:
		return "0.75"
	case 0.9:
		return "0.9"
	}
	return "?"
}
