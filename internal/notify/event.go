package notify

import (
	"context"
	"time"
)

// Kind identifies what happened.
type Kind string

// Event kinds.
const (
	EventDeviceChanged     Kind = "device.changed"
	EventTaskScheduled     Kind = "task.scheduled"
	EventTaskUpdated       Kind = "task.updated"
	EventTaskRemoved       Kind = "task.removed"
	EventTaskExecuted      Kind = "task.executed"
	EventTaskFailed        Kind = "task.failed"
	EventUnknownRepeat     Kind = "task.unknown_repeat"
	EventAutomationLinked  Kind = "automation.linked"
	EventAutomationRemoved Kind = "automation.unlinked"
	EventSensorReading     Kind = "sensor.reading"
	EventNotFound          Kind = "error.not_found"
	EventInvalid           Kind = "error.invalid"
	EventRecordSkipped     Kind = "store.record_skipped"
	EventPersistFailed     Kind = "store.persist_failed"
)

// Level is the operator-facing severity of an event.
type Level string

// Levels.
const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a fire-and-forget report of a state change or a non-fatal
// condition. Optional fields are omitted from the JSON form when empty.
type Event struct {
	Kind     Kind      `json:"kind"`
	Level    Level     `json:"level"`
	Message  string    `json:"message"`
	DeviceID string    `json:"device_id,omitempty"`
	SensorID string    `json:"sensor_id,omitempty"`
	TaskID   string    `json:"task_id,omitempty"`
	Action   string    `json:"action,omitempty"`
	Source   string    `json:"source,omitempty"`
	On       *bool     `json:"on,omitempty"`
	Value    *float64  `json:"value,omitempty"`
	At       time.Time `json:"at"`
}

// WithOn sets the power state carried by the event.
func (e Event) WithOn(on bool) Event {
	e.On = &on
	return e
}

// WithValue sets the numeric value carried by the event.
func (e Event) WithValue(v float64) Event {
	e.Value = &v
	return e
}

// Notifier receives events. Implementations must not block the caller for
// long and must not feed back into the scheduler or automation engine.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, e Event)

// Notify calls f.
func (f Func) Notify(ctx context.Context, e Event) { f(ctx, e) }

// Nop discards every event.
var Nop Notifier = Func(func(context.Context, Event) {})
