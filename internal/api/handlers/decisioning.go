package handlers

import (
	"net/http"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/targeting"
	"github.com/wonny/clv-retention/pkg/logger"
)

// DecisioningDefaults prefill what-if requests from the params document
type DecisioningDefaults struct {
	Params       targeting.Params
	Weights      targeting.Weights
	TopN         int
	SweepWeights []float64
}

// DecisioningHandler re-runs targeting over the latest predictions
// without touching the stored run artifacts.
type DecisioningHandler struct {
	reader   contracts.PredictionReader
	defaults DecisioningDefaults
	logger   *logger.Logger
}

// NewDecisioningHandler creates a new decisioning handler
func NewDecisioningHandler(reader contracts.PredictionReader, defaults DecisioningDefaults, log *logger.Logger) *DecisioningHandler {
	return &DecisioningHandler{reader: reader, defaults: defaults, logger: log}
}

type simulateResponse struct {
	CutoffDate string                   `json:"cutoff_date"`
	Params     targeting.SimulateParams `json:"params"`
	Result     *targeting.Simulation    `json:"result"`
}

// Simulate compares loss-only and blended targeting for the posted budget
// POST /api/decisioning/simulate
func (h *DecisioningHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	req := targeting.SimulateParams{
		Params:  h.defaults.Params,
		Weights: h.defaults.Weights,
		TopN:    h.defaults.TopN,
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondFailure(w, h.logger, err, "")
		return
	}
	if err := checkSimulate(req); err != nil {
		respondFailure(w, h.logger, err, "")
		return
	}

	cutoff, preds, err := h.latest(r)
	if err != nil {
		respondFailure(w, h.logger, err, "Failed to load predictions")
		return
	}

	sim, err := targeting.Simulate(preds, req)
	if err != nil {
		respondFailure(w, h.logger, err, "Simulation failed")
		return
	}

	respondJSON(w, http.StatusOK, simulateResponse{
		CutoffDate: contracts.FormatDate(cutoff),
		Params:     req,
		Result:     sim,
	})
}

// sweepRequest is a budget plus the w_loss values to try
type sweepRequest struct {
	targeting.Params
	WLosses []float64 `json:"w_losses" validate:"omitempty,max=101,dive,gte=0,lte=1"`
}

type sweepResponse struct {
	CutoffDate string                 `json:"cutoff_date"`
	Points     []targeting.SweepPoint `json:"points"`
}

// Sweep walks the loss/CLV weighting frontier
// POST /api/decisioning/sweep
func (h *DecisioningHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	req := sweepRequest{Params: h.defaults.Params}
	if err := decodeJSON(w, r, &req); err != nil {
		respondFailure(w, h.logger, err, "")
		return
	}
	if len(req.WLosses) == 0 {
		req.WLosses = h.defaults.SweepWeights
	}
	if err := validateStruct(req); err != nil {
		respondFailure(w, h.logger, err, "")
		return
	}
	if err := req.Params.Validate(); err != nil {
		respondFailure(w, h.logger, err, "")
		return
	}

	cutoff, preds, err := h.latest(r)
	if err != nil {
		respondFailure(w, h.logger, err, "Failed to load predictions")
		return
	}

	points, err := targeting.WeightSweep(preds, req.WLosses, req.Params)
	if err != nil {
		respondFailure(w, h.logger, err, "Sweep failed")
		return
	}

	respondJSON(w, http.StatusOK, sweepResponse{
		CutoffDate: contracts.FormatDate(cutoff),
		Points:     points,
	})
}

func checkSimulate(req targeting.SimulateParams) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if err := req.Params.Validate(); err != nil {
		return err
	}
	return req.Weights.Validate()
}

func (h *DecisioningHandler) latest(r *http.Request) (cutoff time.Time, preds []contracts.PredictionRow, err error) {
	ctx := r.Context()
	if cutoff, err = h.reader.LatestCutoff(ctx); err != nil {
		return cutoff, nil, err
	}
	preds, err = h.reader.Latest(ctx)
	return cutoff, preds, err
}
