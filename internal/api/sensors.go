package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homesim/internal/automation"
	"github.com/nerrad567/homesim/internal/device"
)

type createSensorRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type sensorReadingRequest struct {
	Value *float64 `json:"value"`
}

func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	sensors := s.engine.Sensors()
	out := make([]device.SensorState, 0, len(sensors))
	for _, sensor := range sensors {
		out = append(out, sensor.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": out, "count": len(out)})
}

func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.engine.Sensor(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "sensor not found")
		return
	}
	writeJSON(w, http.StatusOK, sensor.Snapshot())
}

func (s *Server) handleCreateSensor(w http.ResponseWriter, r *http.Request) {
	var req createSensorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sensor := device.NewSensor(req.ID, req.Name, req.Unit)
	if err := device.ValidateSensor(sensor); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if _, exists := s.engine.Sensor(sensor.ID); exists {
		writeConflict(w, fmt.Sprintf("sensor %q already exists", sensor.ID))
		return
	}

	if err := s.store.SaveSensor(r.Context(), sensor); err != nil {
		s.logger.Error("failed to save sensor", "sensor_id", sensor.ID, "error", err)
		writeInternalError(w, "failed to save sensor")
		return
	}
	s.engine.RegisterSensor(sensor)

	writeJSON(w, http.StatusCreated, sensor.Snapshot())
}

// handleSensorReading feeds a value to the automation engine and returns
// the devices it switched.
func (s *Server) handleSensorReading(w http.ResponseWriter, r *http.Request) {
	var req sensorReadingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil || math.IsNaN(*req.Value) || math.IsInf(*req.Value, 0) {
		writeValidationError(w, "value must be a finite number")
		return
	}

	transitions, err := s.engine.OnReadingByID(r.Context(), chi.URLParam(r, "id"), *req.Value)
	if errors.Is(err, automation.ErrSensorNotFound) {
		writeNotFound(w, "sensor not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to apply reading")
		return
	}
	if transitions == nil {
		transitions = []automation.Transition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}
