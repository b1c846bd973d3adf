package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/logger"
)

// maxBodyBytes caps decoded request bodies
const maxBodyBytes = 1 << 20

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondFailure maps pipeline errors onto status codes.
// Validation → 400, missing data → 404, everything else → 500 without detail.
func respondFailure(w http.ResponseWriter, log *logger.Logger, err error, msg string) {
	var verr *contracts.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, contracts.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		log.WithError(err).Error(msg)
		respondError(w, http.StatusInternalServerError, msg)
	}
}

// decodeJSON decodes an optional request body into dst.
// An empty body keeps whatever dst was prefilled with.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return contracts.NewValidationError("body", "invalid JSON: %v", err)
	}
	return nil
}
