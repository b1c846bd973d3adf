package handlers

import (
	"net/http"
	"strconv"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/logger"
)

// DefaultTopN is used when the n query parameter is absent
const DefaultTopN = 50

// PredictionsHandler serves read-only projections of the latest partition
// ⭐ SSOT: 예측 조회 API는 이 구조체에서만
type PredictionsHandler struct {
	reader contracts.PredictionReader
	logger *logger.Logger
}

// NewPredictionsHandler creates a new predictions handler
func NewPredictionsHandler(reader contracts.PredictionReader, log *logger.Logger) *PredictionsHandler {
	return &PredictionsHandler{reader: reader, logger: log}
}

// latestResponse wraps the latest partition with its cutoff
type latestResponse struct {
	CutoffDate string                    `json:"cutoff_date"`
	Count      int                       `json:"count"`
	Rows       []contracts.PredictionRow `json:"rows"`
}

// GetLatest returns every prediction of the latest cutoff
// GET /api/predictions/latest
func (h *PredictionsHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cutoff, err := h.reader.LatestCutoff(ctx)
	if err != nil {
		respondFailure(w, h.logger, err, "Failed to retrieve latest cutoff")
		return
	}
	rows, err := h.reader.Latest(ctx)
	if err != nil {
		respondFailure(w, h.logger, err, "Failed to retrieve latest predictions")
		return
	}

	respondJSON(w, http.StatusOK, latestResponse{
		CutoffDate: contracts.FormatDate(cutoff),
		Count:      len(rows),
		Rows:       rows,
	})
}

// GetSummary returns aggregates over the latest partition
// GET /api/predictions/latest/summary
func (h *PredictionsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reader.Summary(r.Context())
	if err != nil {
		respondFailure(w, h.logger, err, "Failed to summarize predictions")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// topResponse is the ranked slice of the latest partition
type topResponse struct {
	By   string                    `json:"by"`
	N    int                       `json:"n"`
	Rows []contracts.PredictionRow `json:"rows"`
}

// GetTop returns the n highest rows by an allowed metric
// GET /api/predictions/latest/top?by=expected_loss&n=50
func (h *PredictionsHandler) GetTop(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	by := q.Get("by")
	if by == "" {
		by = contracts.MetricExpectedLoss
	}
	if !contracts.IsRankingMetric(by) {
		respondFailure(w, h.logger, contracts.NewValidationError("by", "unsupported metric %q", by), "")
		return
	}

	n := DefaultTopN
	if raw := q.Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondFailure(w, h.logger, contracts.NewValidationError("n", "not an integer: %q", raw), "")
			return
		}
		n = parsed
	}
	if err := validateVar("n", n, "gte=1,lte=1000"); err != nil {
		respondFailure(w, h.logger, err, "")
		return
	}

	rows, err := h.reader.TopN(r.Context(), by, n)
	if err != nil {
		respondFailure(w, h.logger, err, "Failed to rank predictions")
		return
	}
	respondJSON(w, http.StatusOK, topResponse{By: by, N: len(rows), Rows: rows})
}
