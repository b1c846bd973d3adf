package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/wonny/clv-retention/internal/report"
	"github.com/wonny/clv-retention/pkg/logger"
)

// ReportsHandler exposes the report artifacts directory read-only
type ReportsHandler struct {
	dir    string
	logger *logger.Logger
}

// NewReportsHandler creates a new reports handler
func NewReportsHandler(dir string, log *logger.Logger) *ReportsHandler {
	return &ReportsHandler{dir: dir, logger: log}
}

// List returns the artifacts, newest first
// GET /api/reports
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := report.List(h.dir)
	if err != nil {
		respondFailure(w, h.logger, err, "Failed to list reports")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(files),
		"files": files,
	})
}

// Get streams one artifact
// GET /api/reports/{name}
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	body, err := report.Open(h.dir, name)
	if err != nil {
		respondFailure(w, h.logger, err, "Failed to read report")
		return
	}

	contentType := "text/csv; charset=utf-8"
	if filepath.Ext(name) == ".json" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
