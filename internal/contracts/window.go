package contracts

import (
	"time"
)

// DateLayout is the canonical cutoff date format used in keys, files and JSON
const DateLayout = "2006-01-02"

// Window is the set of half-open intervals derived from one cutoff.
// ⭐ SSOT: 관측/갭/예측 구간 정의
//
//	[ObsStart, ObsEnd) observation, features only
//	[GapStart, GapEnd) gap, never read
//	[PredStart, PredEnd) prediction, labels only
type Window struct {
	CutoffDate time.Time `json:"cutoff_date"`
	ObsStart   time.Time `json:"obs_start"`
	ObsEnd     time.Time `json:"obs_end"`
	GapStart   time.Time `json:"gap_start"`
	GapEnd     time.Time `json:"gap_end"`
	PredStart  time.Time `json:"pred_start"`
	PredEnd    time.Time `json:"pred_end"`
}

// Validate checks the interval ordering. A zero-day gap is allowed.
func (w Window) Validate() error {
	switch {
	case !w.ObsStart.Before(w.ObsEnd):
		return NewValidationError("obs_start", "must be before obs_end (%s >= %s)", FormatDate(w.ObsStart), FormatDate(w.ObsEnd))
	case !w.ObsEnd.Equal(w.GapStart):
		return NewValidationError("gap_start", "must equal obs_end")
	case w.GapEnd.Before(w.GapStart):
		return NewValidationError("gap_end", "must not precede gap_start")
	case !w.GapEnd.Equal(w.PredStart):
		return NewValidationError("pred_start", "must equal gap_end")
	case !w.PredStart.Before(w.PredEnd):
		return NewValidationError("pred_end", "must be after pred_start")
	case !w.CutoffDate.Equal(w.ObsEnd):
		return NewValidationError("cutoff_date", "must equal obs_end")
	}
	return nil
}

// InObservation reports ObsStart <= ts < ObsEnd
func (w Window) InObservation(ts time.Time) bool {
	return !ts.Before(w.ObsStart) && ts.Before(w.ObsEnd)
}

// InPrediction reports PredStart <= ts < PredEnd
func (w Window) InPrediction(ts time.Time) bool {
	return !ts.Before(w.PredStart) && ts.Before(w.PredEnd)
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// FormatDate renders t as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, NewValidationError("cutoff_date", "expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
