package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/homesim/internal/clock"
	"github.com/nerrad567/homesim/internal/device"
	"github.com/nerrad567/homesim/internal/notify"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// LinkStore persists automation links.
type LinkStore interface {
	SaveLink(ctx context.Context, l Link) error
	DeleteLink(ctx context.Context, deviceID string) error
}

// DeviceStore persists a device after its automation state or power changed.
type DeviceStore interface {
	SaveDevice(ctx context.Context, d *device.Device) error
}

// SensorStore persists a sensor's last reading.
type SensorStore interface {
	SaveSensor(ctx context.Context, s *device.Sensor) error
}

// ReadingSink receives every accepted reading (time-series store, cache).
// Implementations must not block for long.
type ReadingSink interface {
	RecordReading(ctx context.Context, sensorID, unit string, value float64, at time.Time)
}

// Metrics receives automation measurements.
type Metrics interface {
	SensorReading(sensorID string, value float64)
	AutomationTransition(direction string)
	DeviceState(deviceID string, on bool)
}

type noopMetrics struct{}

func (noopMetrics) SensorReading(string, float64) {}
func (noopMetrics) AutomationTransition(string)   {}
func (noopMetrics) DeviceState(string, bool)      {}

// Engine applies sensor readings to linked devices.
//
// Thread Safety: all methods are safe for concurrent use. Readings, links
// and re-evaluation are serialised so each reading is applied to a stable
// slave set.
type Engine struct {
	mu      sync.Mutex
	sensors map[string]*device.Sensor

	registry *device.Registry
	links    LinkStore
	clock    clock.Clock

	devices  DeviceStore
	sensorDB SensorStore
	history  device.HistoryRecorder
	sinks    []ReadingSink
	notifier notify.Notifier
	metrics  Metrics
	logger   Logger
}

// NewEngine creates an engine over the device registry. links receives
// link writes and removals; clk stamps readings.
func NewEngine(registry *device.Registry, links LinkStore, clk clock.Clock) *Engine {
	return &Engine{
		sensors:  make(map[string]*device.Sensor),
		registry: registry,
		links:    links,
		clock:    clk,
		notifier: notify.Nop,
		metrics:  noopMetrics{},
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) { e.logger = logger }

// SetNotifier sets where automation events are reported.
func (e *Engine) SetNotifier(n notify.Notifier) { e.notifier = n }

// SetMetrics sets the metrics sink.
func (e *Engine) SetMetrics(m Metrics) { e.metrics = m }

// SetDeviceStore enables saving devices changed by the engine.
func (e *Engine) SetDeviceStore(ds DeviceStore) { e.devices = ds }

// SetSensorStore enables saving each sensor's last reading.
func (e *Engine) SetSensorStore(ss SensorStore) { e.sensorDB = ss }

// SetHistory enables recording transitions caused by readings.
func (e *Engine) SetHistory(h device.HistoryRecorder) { e.history = h }

// AddReadingSink registers a sink for accepted readings.
func (e *Engine) AddReadingSink(s ReadingSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// RegisterSensor adds s, replacing any sensor with the same id.
func (e *Engine) RegisterSensor(s *device.Sensor) {
	if s == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s.ID = device.NormalizeID(s.ID)
	e.sensors[s.ID] = s
	e.logger.Debug("sensor registered", "sensor_id", s.ID)
}

// LoadSensors replaces the sensor table with sensors restored from the store.
func (e *Engine) LoadSensors(sensors map[string]*device.Sensor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sensors = make(map[string]*device.Sensor, len(sensors))
	for _, s := range sensors {
		if s == nil {
			continue
		}
		e.sensors[device.NormalizeID(s.ID)] = s
	}
	e.logger.Info("sensors loaded", "count", len(e.sensors))
}

// Sensor returns the registered sensor with the given id.
func (e *Engine) Sensor(id string) (*device.Sensor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sensors[device.NormalizeID(id)]
	return s, ok
}

// Sensors returns all registered sensors ordered by id.
func (e *Engine) Sensors() []*device.Sensor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedSensorsLocked()
}

func (e *Engine) sortedSensorsLocked() []*device.Sensor {
	out := make([]*device.Sensor, 0, len(e.sensors))
	for _, s := range e.sensors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Link makes s drive d with the band (onBelow, offAbove) and enables
// automation on d.
//
// Both must be the instances held by their registries; a copy with the same
// id is rejected. The link and the device are saved independently and the
// result is false if either write failed. The in-memory link stays in
// place either way.
func (e *Engine) Link(ctx context.Context, d *device.Device, s *device.Sensor, onBelow, offAbove float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.linkLocked(ctx, d, s, onBelow, offAbove)
}

// LinkByID looks both sides up and links them.
func (e *Engine) LinkByID(ctx context.Context, deviceID, sensorID string, onBelow, offAbove float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.registry.Get(deviceID)
	if !ok {
		e.report(ctx, notify.EventNotFound, fmt.Sprintf("cannot link: device %q not found", deviceID),
			device.NormalizeID(deviceID), device.NormalizeID(sensorID))
		return false
	}
	s, ok := e.sensors[device.NormalizeID(sensorID)]
	if !ok {
		e.report(ctx, notify.EventNotFound, fmt.Sprintf("cannot link: sensor %q not found", sensorID),
			d.ID, device.NormalizeID(sensorID))
		return false
	}
	return e.linkLocked(ctx, d, s, onBelow, offAbove)
}

func (e *Engine) linkLocked(ctx context.Context, d *device.Device, s *device.Sensor, onBelow, offAbove float64) bool {
	if d == nil {
		e.report(ctx, notify.EventNotFound, "cannot link: no device given", "", sensorIDOf(s))
		return false
	}
	if !e.registry.IsCanonical(d) {
		err := fmt.Errorf("device %q: %w", d.ID, ErrNotCanonical)
		e.report(ctx, notify.EventNotFound, "cannot link: "+err.Error(), d.ID, sensorIDOf(s))
		return false
	}
	if s == nil {
		e.report(ctx, notify.EventNotFound, "cannot link: no sensor given", d.ID, "")
		return false
	}
	if e.sensors[s.ID] != s {
		err := fmt.Errorf("sensor %q: %w", s.ID, ErrNotCanonical)
		e.report(ctx, notify.EventNotFound, "cannot link: "+err.Error(), d.ID, s.ID)
		return false
	}

	h, err := device.NewHysteresis(onBelow, offAbove)
	if err != nil {
		e.report(ctx, notify.EventInvalid,
			fmt.Sprintf("cannot link %s to %s: invalid thresholds (%g, %g)", d.ID, s.ID, onBelow, offAbove),
			d.ID, s.ID)
		return false
	}

	// A device follows one sensor at a time.
	if prev := d.SourceSensorID(); prev != "" && prev != s.ID {
		if old, ok := e.sensors[prev]; ok {
			old.RemoveSlave(d.ID)
		}
	}

	if err := d.EnableAutomation(s.ID, h); err != nil {
		e.report(ctx, notify.EventInvalid, fmt.Sprintf("cannot link %s to %s: %v", d.ID, s.ID, err), d.ID, s.ID)
		return false
	}
	s.AddSlave(d)

	ok := true
	if e.links != nil {
		link := Link{
			DeviceID:     d.ID,
			SensorID:     s.ID,
			TurnOnBelow:  h.TurnOnBelow,
			TurnOffAbove: h.TurnOffAbove,
			CreatedAt:    e.clock.Now(),
		}
		if err := e.links.SaveLink(ctx, link); err != nil {
			e.persistFailed(ctx, "saving automation link", d.ID, err)
			ok = false
		}
	}
	if !e.saveDevice(ctx, d) {
		ok = false
	}

	e.logger.Info("automation linked",
		"device_id", d.ID, "sensor_id", s.ID, "turn_on_below", h.TurnOnBelow, "turn_off_above", h.TurnOffAbove)
	e.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventAutomationLinked,
		Level:    notify.LevelInfo,
		Message:  fmt.Sprintf("%s now follows %s (on at or below %g, off at or above %g)", d.Name, s.Name, h.TurnOnBelow, h.TurnOffAbove),
		DeviceID: d.ID,
		SensorID: s.ID,
		At:       e.clock.Now(),
	})
	return ok
}

// Unlink disables automation on d and removes it from its sensor. It
// returns false if d was not linked or the removal could not be saved.
func (e *Engine) Unlink(ctx context.Context, d *device.Device) bool {
	if d == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !d.AutomationEnabled() && d.SourceSensorID() == "" {
		e.report(ctx, notify.EventNotFound, fmt.Sprintf("%s has no automation link", d.ID), d.ID, "")
		return false
	}

	prev := d.DisableAutomation()
	if s, ok := e.sensors[prev]; ok {
		s.RemoveSlave(d.ID)
	}

	ok := true
	if e.links != nil {
		if err := e.links.DeleteLink(ctx, d.ID); err != nil {
			e.persistFailed(ctx, "deleting automation link", d.ID, err)
			ok = false
		}
	}
	if !e.saveDevice(ctx, d) {
		ok = false
	}

	e.logger.Info("automation unlinked", "device_id", d.ID, "sensor_id", prev)
	e.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventAutomationRemoved,
		Level:    notify.LevelInfo,
		Message:  fmt.Sprintf("%s no longer follows %s", d.Name, prev),
		DeviceID: d.ID,
		SensorID: prev,
		At:       e.clock.Now(),
	})
	return ok
}

// UnlinkByID looks the device up and unlinks it.
func (e *Engine) UnlinkByID(ctx context.Context, deviceID string) (bool, error) {
	d, ok := e.registry.Get(deviceID)
	if !ok {
		e.report(ctx, notify.EventNotFound, fmt.Sprintf("cannot unlink: device %q not found", deviceID),
			device.NormalizeID(deviceID), "")
		return false, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return e.Unlink(ctx, d), nil
}

// OnReading records value on s and applies it to every linked device with
// automation enabled. It returns the devices that switched.
func (e *Engine) OnReading(ctx context.Context, s *device.Sensor, value float64) []Transition {
	if s == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	at := e.clock.Now()
	slaves := s.Update(value, at)

	e.metrics.SensorReading(s.ID, value)
	for _, sink := range e.sinks {
		sink.RecordReading(ctx, s.ID, s.Unit, value, at)
	}
	if e.sensorDB != nil {
		if err := e.sensorDB.SaveSensor(ctx, s); err != nil {
			e.persistFailed(ctx, "saving sensor reading", "", err)
		}
	}
	e.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventSensorReading,
		Level:    notify.LevelInfo,
		Message:  fmt.Sprintf("%s reads %g%s", s.Name, value, s.Unit),
		SensorID: s.ID,
		At:       at,
	}.WithValue(value))

	return e.applyLocked(ctx, s, slaves, value, at)
}

// OnReadingByID looks the sensor up and applies the reading.
func (e *Engine) OnReadingByID(ctx context.Context, sensorID string, value float64) ([]Transition, error) {
	s, ok := e.Sensor(sensorID)
	if !ok {
		e.report(ctx, notify.EventNotFound, fmt.Sprintf("reading for unknown sensor %q", sensorID),
			"", device.NormalizeID(sensorID))
		return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, sensorID)
	}
	return e.OnReading(ctx, s, value), nil
}

// ReevaluateAll applies every sensor's last reading to its linked devices
// again, without stamping a new reading. Sensors that never reported are
// skipped.
func (e *Engine) ReevaluateAll(ctx context.Context) []Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Transition
	for _, s := range e.sortedSensorsLocked() {
		if !s.HasReading() {
			continue
		}
		value, _ := s.Reading()
		out = append(out, e.applyLocked(ctx, s, s.Slaves(), value, e.clock.Now())...)
	}
	e.logger.Info("automation re-evaluated", "sensors", len(e.sensors), "transitions", len(out))
	return out
}

// Restore re-establishes both sides of persisted links. Links naming an
// unknown device or sensor, or carrying an invalid band, are skipped and
// reported. Nothing is saved. It returns the number restored.
func (e *Engine) Restore(ctx context.Context, links []Link) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	restored := 0
	for _, l := range links {
		d, ok := e.registry.Get(l.DeviceID)
		if !ok {
			e.report(ctx, notify.EventRecordSkipped,
				fmt.Sprintf("automation link skipped: device %q not found", l.DeviceID), l.DeviceID, l.SensorID)
			continue
		}
		s, ok := e.sensors[device.NormalizeID(l.SensorID)]
		if !ok {
			e.report(ctx, notify.EventRecordSkipped,
				fmt.Sprintf("automation link skipped: sensor %q not found", l.SensorID), d.ID, l.SensorID)
			continue
		}
		if err := d.EnableAutomation(s.ID, l.Hysteresis()); err != nil {
			e.report(ctx, notify.EventRecordSkipped,
				fmt.Sprintf("automation link skipped for %s: %v", d.ID, err), d.ID, s.ID)
			continue
		}
		s.AddSlave(d)
		restored++
	}
	e.logger.Info("automation links restored", "count", restored, "skipped", len(links)-restored)
	return restored
}

// applyLocked runs the hysteresis decision once per eligible slave.
func (e *Engine) applyLocked(ctx context.Context, s *device.Sensor, slaves []*device.Device, value float64, at time.Time) []Transition {
	var out []Transition
	for _, d := range slaves {
		if !d.AutomationEnabled() || d.SourceSensorID() != s.ID {
			continue
		}
		h, ok := d.Thresholds()
		if !ok {
			continue
		}

		var changed bool
		decision := Decide(h, value, d.IsOn())
		switch decision {
		case SwitchOn:
			changed = d.TurnOn()
		case SwitchOff:
			changed = d.TurnOff()
		}
		if !changed {
			continue
		}

		on := decision == SwitchOn
		out = append(out, Transition{DeviceID: d.ID, SensorID: s.ID, On: on, Value: value, At: at})
		e.deviceChanged(ctx, d, s, on, value, at)
	}
	return out
}

func (e *Engine) deviceChanged(ctx context.Context, d *device.Device, s *device.Sensor, on bool, value float64, at time.Time) {
	direction := SwitchOff.String()
	if on {
		direction = SwitchOn.String()
	}
	e.metrics.AutomationTransition(direction)
	e.metrics.DeviceState(d.ID, on)

	e.logger.Info("automation switched device",
		"device_id", d.ID, "sensor_id", s.ID, "value", value, "on", on)
	e.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventDeviceChanged,
		Level:    notify.LevelInfo,
		Message:  fmt.Sprintf("%s switched %s by %s reading %g", d.Name, direction, s.Name, value),
		DeviceID: d.ID,
		SensorID: s.ID,
		Source:   device.SourceAutomation,
		At:       at,
	}.WithOn(on).WithValue(value))

	e.saveDevice(ctx, d)
	if e.history != nil {
		entry := device.HistoryEntry{
			DeviceID:  d.ID,
			On:        on,
			Source:    device.SourceAutomation,
			Detail:    fmt.Sprintf("%s=%g", s.ID, value),
			CreatedAt: at,
		}
		if err := e.history.RecordTransition(ctx, entry); err != nil {
			e.logger.Warn("recording device history", "device_id", d.ID, "error", err)
		}
	}
}

func (e *Engine) saveDevice(ctx context.Context, d *device.Device) bool {
	if e.devices == nil {
		return true
	}
	if err := e.devices.SaveDevice(ctx, d); err != nil {
		e.persistFailed(ctx, "saving device", d.ID, err)
		return false
	}
	return true
}

func (e *Engine) persistFailed(ctx context.Context, what, deviceID string, err error) {
	e.logger.Error(what+" failed", "device_id", deviceID, "error", err)
	e.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventPersistFailed,
		Level:    notify.LevelError,
		Message:  fmt.Sprintf("%s: %v", what, err),
		DeviceID: deviceID,
		At:       e.clock.Now(),
	})
}

func (e *Engine) report(ctx context.Context, kind notify.Kind, msg, deviceID, sensorID string) {
	e.logger.Warn(msg, "device_id", deviceID, "sensor_id", sensorID)
	e.notifier.Notify(ctx, notify.Event{
		Kind:     kind,
		Level:    notify.LevelWarn,
		Message:  msg,
		DeviceID: deviceID,
		SensorID: sensorID,
		At:       e.clock.Now(),
	})
}

func sensorIDOf(s *device.Sensor) string {
	if s == nil {
		return ""
	}
	return s.ID
}
