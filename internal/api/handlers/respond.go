package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Martyparty1988/Martyai/internal/api/middleware"
	"github.com/Martyparty1988/Martyai/internal/commands"
	"github.com/Martyparty1988/Martyai/internal/coordinator"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps domain sentinel errors to HTTP responses. fallback
// is the message used for unexpected failures.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, commands.ErrNoMatch):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, err.Error())
	case errors.Is(err, models.ErrInvalid), errors.Is(err, commands.ErrUnknownProperty):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	case errors.Is(err, models.ErrConflict), errors.Is(err, commands.ErrAmbiguous),
		errors.Is(err, coordinator.ErrCycleInProgress), errors.Is(err, coordinator.ErrDrainInProgress):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, err.Error())
	case errors.Is(err, coordinator.ErrOffline):
		middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, err.Error())
	default:
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, fallback)
	}
}
