package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Martyparty1988/Martyai/internal/api/middleware"
	"github.com/Martyparty1988/Martyai/internal/calendar"
	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/storage"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// Task request types

// TaskRequest is the body of task create and update calls. Checklist items
// given as plain strings are appended as new unchecked subtasks.
type TaskRequest struct {
	Property      string           `json:"property"`
	Date          string           `json:"date"`
	Priority      string           `json:"priority"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Kind          string           `json:"kind"`
	ReservationID *string          `json:"reservation_id"`
	Subtasks      []models.Subtask `json:"subtasks"`
	Checklist     []string         `json:"checklist"`
}

// CompletionRequest toggles a task or subtask. A missing field means true.
type CompletionRequest struct {
	Completed *bool `json:"completed"`
}

func (req TaskRequest) apply(task *models.Task) {
	task.Property = req.Property
	task.Date = req.Date
	task.Priority = req.Priority
	task.Title = req.Title
	task.Description = req.Description
	if req.Kind != "" {
		task.Kind = req.Kind
	}
	if req.ReservationID != nil {
		task.ReservationID = req.ReservationID
	}
	if req.Subtasks != nil {
		task.Subtasks = req.Subtasks
	}
	for _, text := range req.Checklist {
		task.Subtasks = append(task.Subtasks, models.Subtask{Text: text})
	}
}

// ListTasks returns tasks filtered by ?property, ?date and ?completed.
func ListTasks(repo *storage.TaskRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, ok := queryTasks(w, r, repo)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func queryTasks(w http.ResponseWriter, r *http.Request, repo *storage.TaskRepository) ([]models.Task, bool) {
	ctx := r.Context()
	q := r.URL.Query()
	property, date := q.Get("property"), q.Get("date")

	var completed *bool
	if v := q.Get("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "completed must be true or false")
			return nil, false
		}
		completed = &b
	}

	var (
		tasks []models.Task
		err   error
	)
	switch {
	case property != "" && date != "":
		tasks, err = repo.ListByPropertyAndDate(ctx, property, date)
	case property != "":
		tasks, err = repo.ListByProperty(ctx, property)
	case date != "":
		tasks, err = repo.ListByDate(ctx, date)
	case completed != nil:
		tasks, err = repo.ListByCompleted(ctx, *completed)
	default:
		tasks, err = repo.List(ctx)
	}
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query tasks")
		return nil, false
	}

	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if completed == nil || t.Completed == *completed {
			out = append(out, t)
		}
	}
	return out, true
}

// CreateTask adds a task.
func CreateTask(repo *storage.TaskRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		task := &models.Task{}
		req.apply(task)
		if err := repo.Add(r.Context(), task); err != nil {
			writeServiceError(w, err, "Failed to create task")
			return
		}
		writeJSON(w, http.StatusCreated, task)
	}
}

// GetTask returns a single task by ID.
func GetTask(repo *storage.TaskRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := repo.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query task")
			return
		}
		if task == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Task not found")
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

// UpdateTask replaces a task's editable fields.
func UpdateTask(repo *storage.TaskRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req TaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		task, err := repo.GetByID(ctx, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query task")
			return
		}
		if task == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Task not found")
			return
		}

		req.apply(task)
		if err := repo.Update(ctx, task); err != nil {
			writeServiceError(w, err, "Failed to update task")
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

// DeleteTask removes a task.
func DeleteTask(repo *storage.TaskRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeServiceError(w, err, "Failed to delete task")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CompleteTask marks a task and all of its subtasks.
func CompleteTask(repo *storage.TaskRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		completed, ok := decodeCompletion(w, r)
		if !ok {
			return
		}
		task, err := repo.SetCompleted(r.Context(), mux.Vars(r)["id"], completed)
		if err != nil {
			writeServiceError(w, err, "Failed to update task")
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

// CompleteSubtask marks one checklist item and returns the updated task.
func CompleteSubtask(repo *storage.TaskRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		completed, ok := decodeCompletion(w, r)
		if !ok {
			return
		}
		vars := mux.Vars(r)
		task, err := repo.SetSubtaskCompleted(r.Context(), vars["id"], vars["sid"], completed)
		if err != nil {
			writeServiceError(w, err, "Failed to update subtask")
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func decodeCompletion(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false, false
	}
	if req.Completed == nil {
		return true, true
	}
	return *req.Completed, true
}

// ExportTasks serves the filtered task list as an iCalendar feed, or as
// CSV with ?format=csv.
func ExportTasks(repo *storage.TaskRepository, properties []config.Property) http.HandlerFunc {
	names := make(map[string]string, len(properties))
	for _, p := range properties {
		names[p.Key] = p.Name
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tasks, ok := queryTasks(w, r, repo)
		if !ok {
			return
		}

		switch r.URL.Query().Get("format") {
		case "", "ics":
		case "csv":
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="tasks.csv"`)
			if err := calendar.ExportTasksCSV(w, tasks, names); err != nil {
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to export tasks")
			}
			return
		default:
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "format must be ics or csv")
			return
		}

		name := "Housekeeping"
		if p := r.URL.Query().Get("property"); p != "" {
			name += " " + p
		}
		body, err := calendar.ExportTasks(tasks, name, time.Now())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to export tasks")
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `inline; filename="tasks.ics"`)
		w.Write([]byte(body))
	}
}
