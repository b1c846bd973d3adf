package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/clv-retention/internal/api/handlers"
	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
)

// Deps are the collaborators of the query API
type Deps struct {
	Predictions contracts.PredictionReader
	Defaults    handlers.DecisioningDefaults
	ReportsDir  string

	// Limiter and Metrics are optional
	Limiter Limiter
	Metrics *metrics.Registry
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(deps Deps, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	predictions := handlers.NewPredictionsHandler(deps.Predictions, log)
	decisioning := handlers.NewDecisioningHandler(deps.Predictions, deps.Defaults, log)
	reports := handlers.NewReportsHandler(deps.ReportsDir, log)

	// Health check
	r.HandleFunc("/health", healthCheckHandler(deps.Predictions, log)).Methods("GET")
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Prediction endpoints
	api.HandleFunc("/predictions/latest", predictions.GetLatest).Methods("GET")
	api.HandleFunc("/predictions/latest/summary", predictions.GetSummary).Methods("GET")
	api.HandleFunc("/predictions/latest/top", predictions.GetTop).Methods("GET")

	// What-if decisioning
	api.HandleFunc("/decisioning/simulate", decisioning.Simulate).Methods("POST")
	api.HandleFunc("/decisioning/sweep", decisioning.Sweep).Methods("POST")

	// Report artifacts
	api.HandleFunc("/reports", reports.List).Methods("GET")
	api.HandleFunc("/reports/{name}", reports.Get).Methods("GET")

	if deps.Limiter != nil {
		api.Use(rateLimitMiddleware(deps.Limiter, deps.Metrics, log))
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health and the published cutoff.
// No published predictions yet is still healthy.
func healthCheckHandler(reader contracts.PredictionReader, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":        "ok",
			"service":       ServiceName,
			"latest_cutoff": nil,
			"rows":          0,
		}

		summary, err := reader.Summary(r.Context())
		switch {
		case err == nil:
			body["latest_cutoff"] = contracts.FormatDate(summary.CutoffDate)
			body["rows"] = summary.Rows
		case errors.Is(err, contracts.ErrNotFound):
		default:
			log.WithError(err).Warn("Health check could not read predictions")
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}
}
