package sensorfeed

import (
	"context"

	"github.com/nerrad567/homesim/internal/automation"
	"github.com/nerrad567/homesim/internal/device"
)

// Logger defines the logging interface used by the feeds.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Engine is the part of the automation engine the feeds drive.
type Engine interface {
	Sensors() []*device.Sensor
	OnReading(ctx context.Context, s *device.Sensor, value float64) []automation.Transition
	OnReadingByID(ctx context.Context, sensorID string, value float64) ([]automation.Transition, error)
}
