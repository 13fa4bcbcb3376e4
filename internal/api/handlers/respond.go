package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/sermon"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStageError maps pipeline failures onto the API error taxonomy.
// Internal detail stays in the logs; clients get an actionable status.
func writeStageError(w http.ResponseWriter, stage string, err error) {
	var stateErr *sermon.InvalidStateError
	switch {
	case errors.As(err, &stateErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":          "invalid state for " + stage + ". Current state: " + stateErr.Actual,
			"currentStatus":  stateErr.Actual,
			"expectedStatus": stateErr.Expected,
		})
	case errors.Is(err, sermon.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "processing record not found")
	case errors.Is(err, core.ErrQuotaExhausted):
		writeError(w, http.StatusTooManyRequests, "service temporarily unavailable")
	default:
		log.Printf("%s failed: %v", stage, err)
		writeError(w, http.StatusInternalServerError, "failed to "+stage+" sermon")
	}
}
