package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homesim/internal/schedule"
)

// createTaskRequest is the body of POST /tasks. Time uses the
// "YYYY-MM-DD HH:MM" format in the configured timezone.
type createTaskRequest struct {
	DeviceID string `json:"device_id"`
	Action   string `json:"action"`
	Time     string `json:"time"`
	Repeat   string `json:"repeat"`
}

type updateTaskRequest struct {
	Time   string `json:"time"`
	Repeat string `json:"repeat"`
}

type removeConflictingRequest struct {
	DeviceID string `json:"device_id"`
	Action   string `json:"action"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	views := s.scheduler.Views()
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views, "count": len(views)})
}

// handleCreateTask appends a task. The action text is stored as given and
// only checked against the device when the task fires.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		writeValidationError(w, "action is required")
		return
	}
	at, err := schedule.ParseTime(req.Time, s.loc)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	view, err := s.scheduler.ScheduleByID(r.Context(), req.DeviceID, req.Action, at, req.Repeat)
	if errors.Is(err, schedule.ErrDeviceNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to schedule task")
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

// handleUpdateTask changes the time and repeat policy of the task at
// {index}. Sending an update thaws a frozen task.
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	index, ok := taskIndex(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	at, err := schedule.ParseTime(req.Time, s.loc)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	if !s.scheduler.Update(r.Context(), index, at, req.Repeat) {
		writeNotFound(w, "task not found")
		return
	}
	views := s.scheduler.Views()
	if index >= len(views) {
		writeNotFound(w, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, views[index])
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	index, ok := taskIndex(w, r)
	if !ok {
		return
	}
	if !s.scheduler.Remove(r.Context(), index) {
		writeNotFound(w, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveConflicting(w http.ResponseWriter, r *http.Request) {
	var req removeConflictingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" || strings.TrimSpace(req.Action) == "" {
		writeValidationError(w, "device_id and action are required")
		return
	}

	removed := s.scheduler.RemoveConflicting(r.Context(), req.DeviceID, req.Action)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// taskIndex parses the {index} URL parameter.
func taskIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeBadRequest(w, "task index must be an integer")
		return 0, false
	}
	return index, true
}
