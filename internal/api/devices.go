package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homesim/internal/device"
	"github.com/nerrad567/homesim/internal/notify"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// deviceActionRequest is the body of PUT /devices/{id}/action.
type deviceActionRequest struct {
	Action string `json:"action"`
}

// deviceActionResponse reports the effect of a manual command.
type deviceActionResponse struct {
	Device       device.State `json:"device"`
	Action       string       `json:"action"`
	Changed      bool         `json:"changed"`
	TasksRemoved int          `json:"tasks_removed"`
}

// handleListDevices returns all devices sorted by id.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.List()
	out := make([]device.State, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, d.Snapshot())
}

// handleCreateDevice registers and persists a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	typ, err := device.ParseType(req.Type)
	if err != nil {
		writeValidationError(w, fmt.Sprintf("unknown device type %q", req.Type))
		return
	}
	d := device.New(req.ID, req.Name, typ)
	if err := d.Validate(); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if _, exists := s.registry.Get(d.ID); exists {
		writeConflict(w, fmt.Sprintf("device %q already exists", d.ID))
		return
	}

	if err := s.store.SaveDevice(r.Context(), d); err != nil {
		s.logger.Error("failed to save device", "device_id", d.ID, "error", err)
		writeInternalError(w, "failed to save device")
		return
	}
	s.registry.Register(d)

	writeJSON(w, http.StatusCreated, d.Snapshot())
}

// handleDeviceAction applies a manual command immediately. A manual ON or
// OFF also cancels scheduled tasks for the device with a different action,
// so a pending schedule does not undo the user's choice.
func (s *Server) handleDeviceAction(w http.ResponseWriter, r *http.Request) {
	d, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	var req deviceActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	action, out, err := d.Execute(req.Action)
	switch {
	case errors.Is(err, device.ErrInvalidAction):
		writeBadRequest(w, err.Error())
		return
	case errors.Is(err, device.ErrUnsupportedAction):
		writeValidationError(w, err.Error())
		return
	case err != nil:
		writeInternalError(w, "failed to apply action")
		return
	}

	now := s.clock.Now()
	if out.Changed {
		s.notifier.Notify(ctx, notify.Event{
			Kind:     notify.EventDeviceChanged,
			Level:    notify.LevelInfo,
			Message:  fmt.Sprintf("%s set by hand: %s", d.Name, action),
			DeviceID: d.ID,
			Action:   action.String(),
			Source:   device.SourceManual,
			At:       now,
		}.WithOn(out.On))

		if err := s.store.SaveDevice(ctx, d); err != nil {
			s.logger.Error("failed to save device", "device_id", d.ID, "error", err)
		}
		entry := device.HistoryEntry{
			DeviceID:  d.ID,
			On:        out.On,
			Source:    device.SourceManual,
			Detail:    action.String(),
			CreatedAt: now,
		}
		if err := s.store.RecordTransition(ctx, entry); err != nil {
			s.logger.Warn("failed to record device history", "device_id", d.ID, "error", err)
		}
	}

	removed := 0
	if action.IsSwitch() {
		removed = s.scheduler.RemoveConflicting(ctx, d.ID, action.String())
	}

	writeJSON(w, http.StatusOK, deviceActionResponse{
		Device:       d.Snapshot(),
		Action:       action.String(),
		Changed:      out.Changed,
		TasksRemoved: removed,
	})
}

// handleDeviceHistory returns the most recent power transitions.
//
// Query parameters:
//   - limit: number of entries (default 50, max 500)
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	d, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.store.DeviceHistory(r.Context(), d.ID, limit)
	if err != nil {
		s.logger.Error("failed to read device history", "device_id", d.ID, "error", err)
		writeInternalError(w, "failed to read device history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": d.ID, "history": entries, "count": len(entries)})
}
