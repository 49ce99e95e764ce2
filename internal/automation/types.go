package automation

import (
	"time"

	"github.com/nerrad567/homesim/internal/device"
)

// Link is the persisted form of a sensor driving a device.
type Link struct {
	DeviceID     string    `json:"device_id"`
	SensorID     string    `json:"sensor_id"`
	TurnOnBelow  float64   `json:"turn_on_below"`
	TurnOffAbove float64   `json:"turn_off_above"`
	CreatedAt    time.Time `json:"created_at"`
}

// Hysteresis returns the threshold pair carried by the link.
func (l Link) Hysteresis() device.Hysteresis {
	return device.Hysteresis{TurnOnBelow: l.TurnOnBelow, TurnOffAbove: l.TurnOffAbove}
}

// Transition records one device switched by a reading.
type Transition struct {
	DeviceID string    `json:"device_id"`
	SensorID string    `json:"sensor_id"`
	On       bool      `json:"on"`
	Value    float64   `json:"value"`
	At       time.Time `json:"at"`
}
