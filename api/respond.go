package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campushub/studyhub/globals"
	"github.com/campushub/studyhub/persistence"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			globals.AppLogger.Error("could not encode response", "error", err)
		}
	}
}

// respondError writes the structured error body every failure surfaces as.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps persistence sentinels onto HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, persistence.ErrFull):
		respondError(w, http.StatusConflict, "group is full")
	case errors.Is(err, persistence.ErrAlreadyMember):
		respondError(w, http.StatusConflict, "already a member")
	case errors.Is(err, persistence.ErrDuplicate):
		respondError(w, http.StatusConflict, "already exists")
	default:
		globals.AppLogger.Error("storage error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
