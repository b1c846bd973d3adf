// Package window computes observation / gap / prediction windows and
// enumerates the cutoffs a ledger span can support.
package window

import (
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
)

const day = 24 * time.Hour

// Durations are the window lengths in days
type Durations struct {
	ObservationDays int `yaml:"observation_days" json:"observation_days"`
	GapDays         int `yaml:"gap_days" json:"gap_days"`
	PredictionDays  int `yaml:"prediction_days" json:"prediction_days"`
}

// Validate rejects negative durations and empty observation/prediction windows
func (d Durations) Validate() error {
	if d.ObservationDays <= 0 {
		return contracts.NewValidationError("observation_days", "must be > 0, got %d", d.ObservationDays)
	}
	if d.GapDays < 0 {
		return contracts.NewValidationError("gap_days", "must be >= 0, got %d", d.GapDays)
	}
	if d.PredictionDays <= 0 {
		return contracts.NewValidationError("prediction_days", "must be > 0, got %d", d.PredictionDays)
	}
	return nil
}

// Horizon is gap + prediction: how far past the cutoff the labels reach
func (d Durations) Horizon() time.Duration {
	return time.Duration(d.GapDays+d.PredictionDays) * day
}

// FromCutoff builds the window anchored at cutoff
func FromCutoff(cutoff time.Time, d Durations) (contracts.Window, error) {
	if err := d.Validate(); err != nil {
		return contracts.Window{}, err
	}

	c := contracts.Day(cutoff)
	gapEnd := c.AddDate(0, 0, d.GapDays)

	w := contracts.Window{
		CutoffDate: c,
		ObsStart:   c.AddDate(0, 0, -d.ObservationDays),
		ObsEnd:     c,
		GapStart:   c,
		GapEnd:     gapEnd,
		PredStart:  gapEnd,
		PredEnd:    gapEnd.AddDate(0, 0, d.PredictionDays),
	}
	return w, w.Validate()
}

// EnumerateCutoffs lists every cutoff from minDate+obs to maxDate-(gap+pred)
// inclusive, stepping stepDays. The result is empty when the span is too short.
func EnumerateCutoffs(minDate, maxDate time.Time, d Durations, stepDays int) ([]time.Time, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if stepDays <= 0 {
		return nil, contracts.NewValidationError("step_days", "must be > 0, got %d", stepDays)
	}

	first := contracts.Day(minDate).AddDate(0, 0, d.ObservationDays)
	last := contracts.Day(maxDate).AddDate(0, 0, -(d.GapDays + d.PredictionDays))

	cutoffs := []time.Time{}
	for c := first; !c.After(last); c = c.AddDate(0, 0, stepDays) {
		cutoffs = append(cutoffs, c)
	}
	return cutoffs, nil
}

// Windows builds the window for each cutoff
func Windows(cutoffs []time.Time, d Durations) ([]contracts.Window, error) {
	out := make([]contracts.Window, 0, len(cutoffs))
	for _, c := range cutoffs {
		w, err := FromCutoff(c, d)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
