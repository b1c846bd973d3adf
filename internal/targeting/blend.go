package targeting

import (
	"math"
	"sort"

	"github.com/wonny/clv-retention/internal/contracts"
)

// Weights combine the loss and CLV percentile ranks
type Weights struct {
	WLoss float64 `json:"w_loss" yaml:"w_loss" validate:"gte=0"`
	WCLV  float64 `json:"w_clv" yaml:"w_clv" validate:"gte=0"`
}

// DefaultWeights returns the default 0.7 / 0.3 blend
func DefaultWeights() Weights {
	return Weights{WLoss: 0.7, WCLV: 0.3}
}

// Validate rejects negative or NaN weights
func (w Weights) Validate() error {
	if math.IsNaN(w.WLoss) || w.WLoss < 0 {
		return contracts.NewValidationError("w_loss", "must be >= 0, got %v", w.WLoss)
	}
	if math.IsNaN(w.WCLV) || w.WCLV < 0 {
		return contracts.NewValidationError("w_clv", "must be >= 0, got %v", w.WCLV)
	}
	return nil
}

// BuildBlendedScore scores each row as
//
//	w_loss * pct_rank(expected_loss) + w_clv * pct_rank(expected_clv)
//
// Percentile ranks average ties and lie in [0, 1). Input order is kept.
func BuildBlendedScore(preds []contracts.PredictionRow, w Weights) ([]contracts.TargetedCustomer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	loss := make([]float64, len(preds))
	clv := make([]float64, len(preds))
	for i, p := range preds {
		loss[i] = p.ExpectedLoss
		clv[i] = p.ExpectedCLV
	}
	rLoss := PctRank(loss)
	rCLV := PctRank(clv)

	out := make([]contracts.TargetedCustomer, len(preds))
	for i, p := range preds {
		rl, rc := rLoss[i], rCLV[i]
		out[i] = contracts.TargetedCustomer{
			PredictionRow: p,
			Score:         w.WLoss*rl + w.WCLV*rc,
			LossPctRank:   &rl,
			CLVPctRank:    &rc,
		}
	}
	return out, nil
}

// PctRank returns the ascending percentile rank of each value: the fraction
// of values strictly below it, averaged over its tie group. The lowest value
// ranks 0.
func PctRank(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// positions i..j have i..j values below them; share the mean
		avg := float64(i+j) / 2 / float64(n)
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}
