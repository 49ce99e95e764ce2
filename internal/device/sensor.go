package device

import (
	"strings"
	"sync"
	"time"
)

// Sensor holds a continuous reading and the devices it drives.
//
// The slave list has no duplicates (membership is by device id) and keeps
// link order. A Sensor does not own its slaves; the Registry does.
type Sensor struct {
	ID   string
	Name string
	Unit string

	mu        sync.RWMutex
	reading   float64
	updatedAt time.Time
	slaves    []*Device
}

// NewSensor creates a sensor with a normalized id and no reading.
func NewSensor(id, name, unit string) *Sensor {
	return &Sensor{
		ID:   NormalizeID(id),
		Name: strings.TrimSpace(name),
		Unit: strings.TrimSpace(unit),
	}
}

// Reading returns the last reading and when it was taken. The time is zero
// if the sensor has never reported.
func (s *Sensor) Reading() (float64, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading, s.updatedAt
}

// HasReading reports whether the sensor has ever reported a value.
func (s *Sensor) HasReading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.updatedAt.IsZero()
}

// Update records a new reading and returns the linked devices as they were
// at that instant, so the caller fans the value out to exactly that set.
func (s *Sensor) Update(value float64, at time.Time) []*Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = value
	s.updatedAt = at
	return append([]*Device(nil), s.slaves...)
}

// AddSlave links d to the sensor. It returns false if a device with the
// same id is already linked.
func (s *Sensor) AddSlave(d *Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(d.ID) >= 0 {
		return false
	}
	s.slaves = append(s.slaves, d)
	return true
}

// RemoveSlave unlinks the device with the given id.
func (s *Sensor) RemoveSlave(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(NormalizeID(deviceID))
	if i < 0 {
		return false
	}
	s.slaves = append(s.slaves[:i], s.slaves[i+1:]...)
	return true
}

// HasSlave reports whether the device with the given id is linked.
func (s *Sensor) HasSlave(deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(NormalizeID(deviceID)) >= 0
}

// Slaves returns the linked devices in link order.
func (s *Sensor) Slaves() []*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Device(nil), s.slaves...)
}

func (s *Sensor) indexLocked(deviceID string) int {
	for i, d := range s.slaves {
		if d.ID == deviceID {
			return i
		}
	}
	return -1
}

// SensorState is a point-in-time copy of a sensor.
type SensorState struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Unit      string     `json:"unit"`
	Reading   float64    `json:"reading"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Slaves    []string   `json:"slaves"`
}

// Snapshot returns a consistent copy of the sensor.
func (s *Sensor) Snapshot() SensorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := SensorState{
		ID:      s.ID,
		Name:    s.Name,
		Unit:    s.Unit,
		Reading: s.reading,
		Slaves:  make([]string, 0, len(s.slaves)),
	}
	if !s.updatedAt.IsZero() {
		t := s.updatedAt
		st.UpdatedAt = &t
	}
	for _, d := range s.slaves {
		st.Slaves = append(st.Slaves, d.ID)
	}
	return st
}
