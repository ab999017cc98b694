// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Martyparty1988/Martyai/internal/api/handlers"
	"github.com/Martyparty1988/Martyai/internal/api/middleware"
	"github.com/Martyparty1988/Martyai/internal/commands"
	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/coordinator"
	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/storage"
	"github.com/Martyparty1988/Martyai/internal/websocket"
)

// Services are the components the API exposes. Scheduler and StaticDir
// may be empty.
type Services struct {
	DB           *storage.DB
	Hub          *websocket.Hub
	Reservations *storage.ReservationRepository
	Tasks        *storage.TaskRepository
	Queue        *storage.QueueRepository
	Sync         handlers.Syncer
	Monitor      *coordinator.Monitor
	Scheduler    handlers.Schedule
	Commands     *commands.Service
	Properties   []config.Property
	StaticDir    string
	Log          logging.Logger
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging(s.Log))
	r.Use(middleware.ErrorRecovery(s.Log))

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB, s.Monitor)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.Sync, s.Scheduler, s.Hub)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, s.Log)).Methods("GET")

	api.HandleFunc("/properties", handlers.ListProperties(s.Properties)).Methods("GET")
	api.HandleFunc("/reservations", handlers.ListReservations(s.Reservations)).Methods("GET")

	// Task endpoints
	api.HandleFunc("/tasks", handlers.ListTasks(s.Tasks)).Methods("GET")
	api.HandleFunc("/tasks", handlers.CreateTask(s.Tasks)).Methods("POST")
	api.HandleFunc("/tasks/export.ics", handlers.ExportTasks(s.Tasks, s.Properties)).Methods("GET")
	api.HandleFunc("/tasks/{id}", handlers.GetTask(s.Tasks)).Methods("GET")
	api.HandleFunc("/tasks/{id}", handlers.UpdateTask(s.Tasks)).Methods("PUT")
	api.HandleFunc("/tasks/{id}", handlers.DeleteTask(s.Tasks)).Methods("DELETE")
	api.HandleFunc("/tasks/{id}/complete", handlers.CompleteTask(s.Tasks)).Methods("POST")
	api.HandleFunc("/tasks/{id}/subtasks/{sid}/complete", handlers.CompleteSubtask(s.Tasks)).Methods("POST")

	// Sync endpoints
	api.HandleFunc("/sync", handlers.TriggerSync(s.Sync)).Methods("POST")
	api.HandleFunc("/sync/queue", handlers.ListQueue(s.Queue)).Methods("GET")
	api.HandleFunc("/sync/queue/drain", handlers.DrainQueue(s.Sync)).Methods("POST")
	api.HandleFunc("/connectivity", handlers.GetConnectivity(s.Monitor)).Methods("GET")
	api.HandleFunc("/connectivity", handlers.SetConnectivity(s.Monitor)).Methods("PUT")

	// Bot command endpoints
	api.HandleFunc("/commands/create", handlers.CreateCommand(s.Commands)).Methods("POST")
	api.HandleFunc("/commands/done", handlers.DoneCommand(s.Commands)).Methods("POST")
	api.HandleFunc("/commands/query", handlers.QueryCommand(s.Commands)).Methods("POST")

	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir)))
	}

	return r
}
