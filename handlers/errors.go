package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"power-quality-processor/analytics"
	"power-quality-processor/models"
	"power-quality-processor/storage"
)

type errorResponse struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	ErrorID   string `json:"error_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeServiceError maps domain errors to status codes. Anything unexpected
// becomes a 500 carrying an id that is also logged.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "no data available")
	case errors.Is(err, analytics.ErrInvalidArgument), errors.Is(err, models.ErrInvalidSample):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, analytics.ErrRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		errorID := uuid.NewString()
		log.Error("unexpected error", "error_id", errorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Status:    http.StatusInternalServerError,
			Error:     http.StatusText(http.StatusInternalServerError),
			Message:   "an unexpected error occurred, reference the error id when reporting it",
			ErrorID:   errorID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
