package targeting

import (
	"context"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
)

// SimulateParams are the what-if inputs of the query surface
type SimulateParams struct {
	Params
	Weights
	// TopN trims the returned selections; 0 keeps everything
	TopN int `json:"top_n" validate:"gte=0,lte=1000"`
}

// Simulation compares loss-only and blended targeting on the same predictions
type Simulation struct {
	LossOnly   *contracts.TargetingResult `json:"loss_only"`
	Blended    *contracts.TargetingResult `json:"blended"`
	OverlapPct float64                    `json:"overlap_pct"`
}

// Simulate runs both strategies. Summaries always cover the full selection;
// only the returned lists are trimmed to TopN.
func Simulate(preds []contracts.PredictionRow, sp SimulateParams) (*Simulation, error) {
	lossOnly, err := LossOnly(preds, sp.Params)
	if err != nil {
		return nil, err
	}
	blended, err := Blended(preds, sp.Params, sp.Weights)
	if err != nil {
		return nil, err
	}

	// both selections have the same size, so the overlap is symmetric
	sim := &Simulation{
		LossOnly:   lossOnly,
		Blended:    blended,
		OverlapPct: Overlap(blended.CustomerIDs(), lossOnly.CustomerIDs()),
	}
	if sp.TopN > 0 {
		lossOnly.Selected = lossOnly.Top(sp.TopN)
		blended.Selected = blended.Top(sp.TopN)
	}
	return sim, nil
}

// Optimizer runs the targeting stage of a pipeline run
// ⭐ SSOT: S6 타겟팅 로직은 여기서만
type Optimizer struct {
	params  Params
	weights Weights
	log     *logger.Logger
	metrics *metrics.Registry
}

// NewOptimizer creates a targeting stage. reg may be nil.
func NewOptimizer(p Params, w Weights, log *logger.Logger, reg *metrics.Registry) *Optimizer {
	return &Optimizer{params: p, weights: w, log: log, metrics: reg}
}

// Run targets the latest predictions with both strategies
func (o *Optimizer) Run(ctx context.Context, preds []contracts.PredictionRow) (*Simulation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sim, err := Simulate(preds, SimulateParams{Params: o.params, Weights: o.weights})
	if err != nil {
		return nil, err
	}

	for _, r := range []*contracts.TargetingResult{sim.LossOnly, sim.Blended} {
		fields := map[string]interface{}{
			"strategy":       r.Strategy,
			"targeted":       r.Summary.TargetedCustomers,
			"total_cost":     r.Summary.TotalCost,
			"prevented_loss": r.Summary.ExpectedPreventedLoss,
			"net_uplift":     r.Summary.NetUplift,
		}
		if r.Summary.ROI != nil {
			fields["roi"] = *r.Summary.ROI
		}
		o.log.WithFields(fields).Info("Targeting completed")

		if o.metrics != nil {
			o.metrics.TargetedCount.WithLabelValues(r.Strategy).Set(float64(r.Summary.TargetedCustomers))
			o.metrics.PreventedLoss.WithLabelValues(r.Strategy).Set(r.Summary.ExpectedPreventedLoss)
		}
	}

	if len(preds) > 0 && sim.LossOnly.Summary.TargetedCustomers == 0 {
		o.log.Warn("Budget affords no customers")
	}
	return sim, nil
}
