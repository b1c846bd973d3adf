package targeting

import (
	"math"

	"github.com/wonny/clv-retention/internal/contracts"
)

// SweepPoint is one weighting on the loss/CLV frontier
type SweepPoint struct {
	WLoss             float64                   `json:"w_loss"`
	WCLV              float64                   `json:"w_clv"`
	Summary           contracts.StrategySummary `json:"summary"`
	OverlapVsBaseline float64                   `json:"overlap_vs_baseline"`
}

// DefaultSweepWeights are the w_loss values swept when none are configured
func DefaultSweepWeights() []float64 {
	return []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1, 0.0}
}

// WeightSweep re-targets with w_clv = 1 - w_loss for every w_loss and
// reports how much of each selection the loss-only baseline also picked.
func WeightSweep(preds []contracts.PredictionRow, wLosses []float64, p Params) ([]SweepPoint, error) {
	for _, w := range wLosses {
		if math.IsNaN(w) || w < 0 || w > 1 {
			return nil, contracts.NewValidationError("w_loss", "sweep weights must be within [0, 1], got %v", w)
		}
	}

	baseline, err := LossOnly(preds, p)
	if err != nil {
		return nil, err
	}
	base := baseline.CustomerIDs()

	points := make([]SweepPoint, 0, len(wLosses))
	for _, wl := range wLosses {
		w := Weights{WLoss: wl, WCLV: 1 - wl}
		res, err := Blended(preds, p, w)
		if err != nil {
			return nil, err
		}
		points = append(points, SweepPoint{
			WLoss:             w.WLoss,
			WCLV:              w.WCLV,
			Summary:           res.Summary,
			OverlapVsBaseline: Overlap(res.CustomerIDs(), base),
		})
	}
	return points, nil
}

// Overlap is |selected ∩ baseline| / |selected|, or 0 for an empty selection
func Overlap(selected, baseline []int64) float64 {
	if len(selected) == 0 {
		return 0
	}
	in := make(map[int64]struct{}, len(baseline))
	for _, id := range baseline {
		in[id] = struct{}{}
	}
	shared := 0
	for _, id := range selected {
		if _, ok := in[id]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(selected))
}
