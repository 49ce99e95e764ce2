package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homesim/internal/automation"
	"github.com/nerrad567/homesim/internal/device"
)

type createLinkRequest struct {
	DeviceID     string   `json:"device_id"`
	SensorID     string   `json:"sensor_id"`
	TurnOnBelow  *float64 `json:"turn_on_below"`
	TurnOffAbove *float64 `json:"turn_off_above"`
}

// handleCreateLink makes a sensor drive a device. Lookups and the band are
// checked here so the client gets a precise status; the engine repeats
// the checks under its own lock.
func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TurnOnBelow == nil || req.TurnOffAbove == nil {
		writeValidationError(w, "turn_on_below and turn_off_above are required")
		return
	}
	if _, err := device.NewHysteresis(*req.TurnOnBelow, *req.TurnOffAbove); err != nil {
		writeValidationError(w, "turn_on_below must not exceed turn_off_above")
		return
	}
	d, ok := s.registry.Get(req.DeviceID)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	if _, ok := s.engine.Sensor(req.SensorID); !ok {
		writeNotFound(w, "sensor not found")
		return
	}

	if !s.engine.LinkByID(r.Context(), req.DeviceID, req.SensorID, *req.TurnOnBelow, *req.TurnOffAbove) {
		// The in-memory link is in place; only persistence failed.
		writeInternalError(w, "link applied but not saved")
		return
	}
	writeJSON(w, http.StatusCreated, d.Snapshot())
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	d, ok := s.registry.Get(chi.URLParam(r, "deviceID"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	if !d.AutomationEnabled() && d.SourceSensorID() == "" {
		writeNotFound(w, "device has no automation link")
		return
	}

	if !s.engine.Unlink(r.Context(), d) {
		writeInternalError(w, "link removed but not saved")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReevaluate applies every sensor's last reading again.
func (s *Server) handleReevaluate(w http.ResponseWriter, r *http.Request) {
	transitions := s.engine.ReevaluateAll(r.Context())
	if transitions == nil {
		transitions = []automation.Transition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions, "count": len(transitions)})
}
