package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Martyparty1988/Martyai/internal/api/middleware"
	"github.com/Martyparty1988/Martyai/internal/commands"
)

// Command request types

type CreateCommandRequest struct {
	Property string `json:"property"`
	Title    string `json:"title"`
}

type DoneCommandRequest struct {
	Identifier string `json:"identifier"`
}

type QueryCommandRequest struct {
	Property string `json:"property"`
	Date     string `json:"date"`
}

// CreateCommand creates a manual task for today.
func CreateCommand(svc *commands.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCommandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		task, err := svc.CreateTask(r.Context(), req.Property, req.Title)
		if err != nil {
			writeServiceError(w, err, "Failed to create task")
			return
		}
		writeJSON(w, http.StatusCreated, task)
	}
}

// DoneCommand completes a task by ID or title.
func DoneCommand(svc *commands.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DoneCommandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		task, err := svc.MarkDone(r.Context(), req.Identifier)
		if err != nil {
			writeServiceError(w, err, "Failed to complete task")
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

// QueryCommand summarizes one property.
func QueryCommand(svc *commands.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryCommandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		summary, err := svc.QueryTasks(r.Context(), req.Property, req.Date)
		if err != nil {
			writeServiceError(w, err, "Failed to query property")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
