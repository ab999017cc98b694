package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Martyparty1988/Martyai/internal/api/middleware"
	"github.com/Martyparty1988/Martyai/internal/coordinator"
	"github.com/Martyparty1988/Martyai/internal/storage"
)

// TriggerSync runs a sync cycle and returns its result.
func TriggerSync(syncer Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := syncer.RunCycle(r.Context())
		if err != nil {
			writeServiceError(w, err, "Sync cycle failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ListQueue returns the pending sync queue in replay order.
func ListQueue(queue *storage.QueueRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := queue.List(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query sync queue")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// DrainQueue replays the sync queue against the remote endpoint.
func DrainQueue(syncer Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := syncer.Drain(r.Context())
		if err != nil {
			writeServiceError(w, err, "Queue drain failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ConnectivityResponse is the current connectivity state.
type ConnectivityResponse struct {
	State   string    `json:"state"`
	Since   time.Time `json:"since"`
	Changed bool      `json:"changed,omitempty"`
}

// ConnectivityRequest forces the connectivity state.
type ConnectivityRequest struct {
	Online *bool `json:"online"`
}

// GetConnectivity returns the monitor state.
func GetConnectivity(monitor *coordinator.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, since := monitor.State()
		writeJSON(w, http.StatusOK, ConnectivityResponse{State: state, Since: since})
	}
}

// SetConnectivity switches the monitor online or offline. Going online
// triggers a queue drain followed by a sync cycle.
func SetConnectivity(monitor *coordinator.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConnectivityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.Online == nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "online is required")
			return
		}

		changed := monitor.Set(*req.Online)
		state, since := monitor.State()
		writeJSON(w, http.StatusOK, ConnectivityResponse{State: state, Since: since, Changed: changed})
	}
}
