package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
)

// Params configure the quality stage
type Params struct {
	PSIBins         int      `yaml:"psi_bins" json:"psi_bins"`
	CalibrationBins int      `yaml:"calibration_bins" json:"calibration_bins"`
	DriftFeatures   []string `yaml:"drift_features" json:"drift_features"`
}

// DefaultParams returns the default quality parameters
func DefaultParams() Params {
	return Params{PSIBins: 10, CalibrationBins: 10, DriftFeatures: DefaultDriftFeatures()}
}

// Validate checks the bin counts and feature names
func (p Params) Validate() error {
	if p.PSIBins < 2 {
		return contracts.NewValidationError("quality.psi_bins", "must be >= 2, got %d", p.PSIBins)
	}
	if p.CalibrationBins < 1 {
		return contracts.NewValidationError("quality.calibration_bins", "must be >= 1, got %d", p.CalibrationBins)
	}
	for _, f := range p.DriftFeatures {
		if !contracts.IsFeatureColumn(f) {
			return contracts.NewValidationError("quality.drift_features", "unknown feature %q", f)
		}
	}
	return nil
}

// ColumnLister exposes the physical columns of the prediction store
type ColumnLister interface {
	Columns(ctx context.Context) ([]string, error)
}

// Sources are the stores the quality stage reads
type Sources struct {
	Columns     ColumnLister
	Predictions contracts.PredictionReader
	Dataset     contracts.DatasetReader
}

// Report is the outcome of one quality run
type Report struct {
	CutoffDate  time.Time          `json:"cutoff_date"`
	Rows        int                `json:"rows"`
	Drift       map[string]float64 `json:"drift_psi"`
	Calibration *CalibrationReport `json:"calibration"`
	Thresholds  ThresholdReport    `json:"threshold_sanity"`
}

// Checker runs the prediction store checks, drift and calibration
// ⭐ SSOT: S7 품질 점검은 여기서만
type Checker struct {
	params  Params
	log     *logger.Logger
	metrics *metrics.Registry
}

// NewChecker creates a quality stage. reg may be nil.
func NewChecker(p Params, log *logger.Logger, reg *metrics.Registry) *Checker {
	return &Checker{params: p, log: log, metrics: reg}
}

// Run validates the latest predictions, then compares the latest cutoff's
// features against the training cutoffs. When trainCutoffs is empty every
// cutoff before the latest one is the reference.
func (c *Checker) Run(ctx context.Context, src Sources, trainCutoffs []time.Time) (*Report, error) {
	if err := c.params.Validate(); err != nil {
		return nil, err
	}

	columns, err := src.Columns.Columns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prediction columns: %w", err)
	}
	preds, err := src.Predictions.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest predictions: %w", err)
	}
	if err := ValidatePredictionStore(columns, preds); err != nil {
		return nil, err
	}

	latest, err := src.Predictions.LatestCutoff(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest cutoff: %w", err)
	}
	rows, err := src.Dataset.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rolling dataset: %w", err)
	}

	reference, current := partitionRows(rows, latest, trainCutoffs)
	drift, err := DriftReport(reference, current, c.params.DriftFeatures, c.params.PSIBins)
	if err != nil {
		return nil, err
	}

	yTrue, probs := labelledProbs(preds, current)
	calib, err := Calibration(yTrue, probs, c.params.CalibrationBins)
	if err != nil {
		return nil, err
	}

	churn := make([]float64, len(preds))
	for i, p := range preds {
		churn[i] = p.ChurnProb
	}

	report := &Report{
		CutoffDate:  latest,
		Rows:        len(preds),
		Drift:       drift,
		Calibration: calib,
		Thresholds:  ThresholdSanity(churn),
	}
	c.record(report)
	return report, nil
}

func (c *Checker) record(r *Report) {
	fields := map[string]interface{}{
		"cutoff_date":  contracts.FormatDate(r.CutoffDate),
		"rows":         r.Rows,
		"brier":        r.Calibration.Brier,
		"pct_above_05": r.Thresholds.PctAbove05,
	}
	for f, psi := range r.Drift {
		fields["psi_"+f] = psi
		if c.metrics != nil {
			c.metrics.FeatureDrift.WithLabelValues(f).Set(psi)
		}
		if psi > 0.25 {
			c.log.WithFields(map[string]interface{}{"feature": f, "psi": psi}).Warn("Significant feature drift")
		}
	}
	c.log.WithFields(fields).Info("Quality checks passed")
}

// partitionRows splits the dataset into the reference rows and the rows of the latest cutoff
func partitionRows(rows []contracts.RollingDatasetRow, latest time.Time, trainCutoffs []time.Time) (reference, current []contracts.RollingDatasetRow) {
	train := make(map[time.Time]struct{}, len(trainCutoffs))
	for _, t := range trainCutoffs {
		train[contracts.Day(t)] = struct{}{}
	}
	latest = contracts.Day(latest)

	for _, r := range rows {
		day := contracts.Day(r.CutoffDate)
		switch {
		case day.Equal(latest):
			current = append(current, r)
		case len(train) == 0 && day.Before(latest):
			reference = append(reference, r)
		default:
			if _, ok := train[day]; ok {
				reference = append(reference, r)
			}
		}
	}
	return reference, current
}

// labelledProbs pairs churn probabilities with the observed labels of the same customer
func labelledProbs(preds []contracts.PredictionRow, labelled []contracts.RollingDatasetRow) ([]int, []float64) {
	labels := make(map[int64]int, len(labelled))
	for _, r := range labelled {
		labels[r.CustomerID] = r.ChurnLabel
	}
	var (
		yTrue []int
		probs []float64
	)
	for _, p := range preds {
		if y, ok := labels[p.CustomerID]; ok {
			yTrue = append(yTrue, y)
			probs = append(probs, p.ChurnProb)
		}
	}
	return yTrue, probs
}
