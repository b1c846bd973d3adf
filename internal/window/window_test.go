package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/clv-retention/internal/contracts"
)

var testDurations = Durations{ObservationDays: 60, GapDays: 14, PredictionDays: 30}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFromCutoff(t *testing.T) {
	w, err := FromCutoff(date(2010, 6, 30), testDurations)
	require.NoError(t, err)

	assert.Equal(t, date(2010, 6, 30), w.CutoffDate)
	assert.Equal(t, date(2010, 5, 1), w.ObsStart)
	assert.Equal(t, date(2010, 6, 30), w.ObsEnd)
	assert.Equal(t, w.ObsEnd, w.GapStart)
	assert.Equal(t, date(2010, 7, 14), w.GapEnd)
	assert.Equal(t, w.GapEnd, w.PredStart)
	assert.Equal(t, date(2010, 8, 13), w.PredEnd)
}

func TestFromCutoff_TruncatesTimeOfDay(t *testing.T) {
	w, err := FromCutoff(time.Date(2010, 6, 30, 17, 45, 0, 0, time.UTC), testDurations)
	require.NoError(t, err)
	assert.Equal(t, date(2010, 6, 30), w.CutoffDate)
}

func TestFromCutoff_Ordering(t *testing.T) {
	for _, c := range []time.Time{date(2010, 1, 31), date(2010, 2, 28), date(2011, 12, 31)} {
		w, err := FromCutoff(c, testDurations)
		require.NoError(t, err)

		assert.True(t, w.ObsStart.Before(w.ObsEnd))
		assert.True(t, w.GapStart.Before(w.GapEnd))
		assert.True(t, w.PredStart.Before(w.PredEnd))
		assert.Equal(t, w.CutoffDate, w.ObsEnd)
	}
}

func TestFromCutoff_ZeroGap(t *testing.T) {
	w, err := FromCutoff(date(2010, 6, 30), Durations{ObservationDays: 30, GapDays: 0, PredictionDays: 30})
	require.NoError(t, err)
	assert.Equal(t, w.ObsEnd, w.PredStart)
}

func TestFromCutoff_InvalidDurations(t *testing.T) {
	tests := []struct {
		name  string
		d     Durations
		field string
	}{
		{"negative gap", Durations{60, -1, 30}, "gap_days"},
		{"zero observation", Durations{0, 14, 30}, "observation_days"},
		{"negative prediction", Durations{60, 14, -5}, "prediction_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromCutoff(date(2010, 6, 30), tt.d)
			require.Error(t, err)

			var ve *contracts.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestEnumerateCutoffs(t *testing.T) {
	minDate := date(2010, 1, 1)
	maxDate := date(2010, 9, 17) // 259 days of history

	cutoffs, err := EnumerateCutoffs(minDate, maxDate, testDurations, 20)
	require.NoError(t, err)
	require.NotEmpty(t, cutoffs)

	first := minDate.AddDate(0, 0, 60)
	last := maxDate.AddDate(0, 0, -44)

	assert.Equal(t, first, cutoffs[0])
	for i := 1; i < len(cutoffs); i++ {
		assert.Equal(t, 20*day, cutoffs[i].Sub(cutoffs[i-1]))
	}
	assert.False(t, cutoffs[len(cutoffs)-1].After(last))
	assert.True(t, cutoffs[len(cutoffs)-1].AddDate(0, 0, 20).After(last))
}

func TestEnumerateCutoffs_ExactFit(t *testing.T) {
	minDate := date(2010, 1, 1)
	maxDate := minDate.AddDate(0, 0, 60+44)

	cutoffs, err := EnumerateCutoffs(minDate, maxDate, testDurations, 20)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{minDate.AddDate(0, 0, 60)}, cutoffs)
}

func TestEnumerateCutoffs_TooShort(t *testing.T) {
	minDate := date(2010, 1, 1)
	maxDate := minDate.AddDate(0, 0, 60+44-1)

	cutoffs, err := EnumerateCutoffs(minDate, maxDate, testDurations, 20)
	require.NoError(t, err)
	assert.Empty(t, cutoffs)
}

func TestEnumerateCutoffs_Deterministic(t *testing.T) {
	a, err := EnumerateCutoffs(date(2010, 1, 1), date(2011, 1, 1), testDurations, 7)
	require.NoError(t, err)
	b, err := EnumerateCutoffs(date(2010, 1, 1), date(2011, 1, 1), testDurations, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEnumerateCutoffs_InvalidStep(t *testing.T) {
	_, err := EnumerateCutoffs(date(2010, 1, 1), date(2011, 1, 1), testDurations, 0)
	assert.True(t, contracts.IsValidation(err))
}

func TestWindows(t *testing.T) {
	cutoffs := []time.Time{date(2010, 3, 2), date(2010, 3, 22)}
	ws, err := Windows(cutoffs, testDurations)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, cutoffs[1], ws[1].CutoffDate)
}
