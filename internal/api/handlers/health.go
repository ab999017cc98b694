// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Martyparty1988/Martyai/internal/api/middleware"
	"github.com/Martyparty1988/Martyai/internal/coordinator"
	"github.com/Martyparty1988/Martyai/internal/storage"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
	"github.com/Martyparty1988/Martyai/internal/websocket"
)

// Syncer runs sync cycles and queue replays.
type Syncer interface {
	RunCycle(ctx context.Context) (models.SyncResult, error)
	Drain(ctx context.Context) (models.DrainResult, error)
	Status(ctx context.Context) (coordinator.Status, error)
}

// Schedule reports the next periodic sync. A nil Schedule means none is configured.
type Schedule interface {
	NextRun() *time.Time
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	Online      bool   `json:"online"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB, monitor *coordinator.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, HealthResponse{
			Status:      status,
			Online:      monitor.Online(),
			DBConnected: dbConnected,
		})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	coordinator.Status
	Online           bool       `json:"online"`
	NextSyncAt       *time.Time `json:"next_sync_at,omitempty"`
	WebSocketClients int        `json:"websocket_clients"`
}

// Status returns a handler that provides sync status information.
func Status(syncer Syncer, schedule Schedule, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := syncer.Status(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to read sync status")
			return
		}

		response := StatusResponse{
			Status: s,
			Online: s.State == models.StateOnline,
		}
		if schedule != nil {
			response.NextSyncAt = schedule.NextRun()
		}
		if hub != nil {
			response.WebSocketClients = hub.ClientCount()
		}
		writeJSON(w, http.StatusOK, response)
	}
}
