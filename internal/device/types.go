package device

import (
	"math"
	"strings"
	"sync"
)

// Type classifies a device and fixes the set of actions it accepts.
type Type string

// Device types.
const (
	TypeLight      Type = "light"
	TypeThermostat Type = "thermostat"
	TypeAppliance  Type = "appliance"
	// TypeGeneric is also used for placeholder devices that stand in for
	// ids a stored task references but the device table no longer has.
	TypeGeneric Type = "generic"
)

// AllTypes returns every known device type.
func AllTypes() []Type {
	return []Type{TypeLight, TypeThermostat, TypeAppliance, TypeGeneric}
}

// ParseType converts a case-insensitive type name. An empty name is generic.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return TypeGeneric, nil
	}
	for _, known := range AllTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", ErrInvalidType
}

// Hysteresis is the automation threshold band. A reading at or below
// TurnOnBelow switches an off device on; a reading at or above TurnOffAbove
// switches an on device off. Readings strictly between change nothing.
type Hysteresis struct {
	TurnOnBelow  float64 `json:"turn_on_below"`
	TurnOffAbove float64 `json:"turn_off_above"`
}

// NewHysteresis returns a validated band.
func NewHysteresis(onBelow, offAbove float64) (Hysteresis, error) {
	h := Hysteresis{TurnOnBelow: onBelow, TurnOffAbove: offAbove}
	return h, h.Validate()
}

// Validate enforces TurnOnBelow <= TurnOffAbove with finite bounds.
func (h Hysteresis) Validate() error {
	if math.IsNaN(h.TurnOnBelow) || math.IsNaN(h.TurnOffAbove) ||
		math.IsInf(h.TurnOnBelow, 0) || math.IsInf(h.TurnOffAbove, 0) {
		return ErrInvalidThresholds
	}
	if h.TurnOnBelow > h.TurnOffAbove {
		return ErrInvalidThresholds
	}
	return nil
}

// NormalizeID trims and lower-cases a device or sensor identifier.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Device is a stateful on/off actuator.
//
// The registry holds the canonical *Device; sensors and scheduled tasks keep
// pointers to it. All state methods are safe for concurrent use.
type Device struct {
	ID   string
	Name string
	Type Type

	mu             sync.RWMutex
	on             bool
	automation     bool
	sourceSensorID string
	thresholds     *Hysteresis
	setPoint       float64
	level          int
}

// New creates an off device with a normalized id.
func New(id, name string, t Type) *Device {
	if t == "" {
		t = TypeGeneric
	}
	return &Device{
		ID:   NormalizeID(id),
		Name: strings.TrimSpace(name),
		Type: t,
	}
}

// Placeholder creates the generic stand-in for a device id that could not
// be resolved. It keeps the original id and name so the task can be saved
// back unchanged.
func Placeholder(id, name string) *Device {
	if strings.TrimSpace(name) == "" {
		name = id
	}
	return New(id, name, TypeGeneric)
}

// IsOn reports whether the device is on.
func (d *Device) IsOn() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.on
}

// TurnOn switches the device on and reports whether its state changed.
// Turning on a device that is already on is a no-op.
func (d *Device) TurnOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setOnLocked(true)
}

// TurnOff switches the device off and reports whether its state changed.
func (d *Device) TurnOff() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setOnLocked(false)
}

func (d *Device) setOnLocked(on bool) bool {
	if d.on == on {
		return false
	}
	d.on = on
	return true
}

// AutomationEnabled reports whether sensor readings may drive the device.
func (d *Device) AutomationEnabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.automation
}

// SourceSensorID returns the id of the sensor driving the device, or "".
func (d *Device) SourceSensorID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sourceSensorID
}

// Thresholds returns the hysteresis band, if one is set.
func (d *Device) Thresholds() (Hysteresis, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.thresholds == nil {
		return Hysteresis{}, false
	}
	return *d.thresholds, true
}

// EnableAutomation links the device to sensorID with band h.
func (d *Device) EnableAutomation(sensorID string, h Hysteresis) error {
	if err := h.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sourceSensorID = NormalizeID(sensorID)
	d.thresholds = &h
	d.automation = true
	return nil
}

// DisableAutomation clears the automation link and returns the sensor id it
// was linked to. The on/off state is left as is.
func (d *Device) DisableAutomation() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.sourceSensorID
	d.automation = false
	d.sourceSensorID = ""
	d.thresholds = nil
	return prev
}

// SetPoint returns the thermostat target temperature.
func (d *Device) SetPoint() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.setPoint
}

// Level returns the light brightness (0-100).
func (d *Device) Level() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.level
}

// State is a point-in-time copy of a device, used by the API and the store.
type State struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Type              Type        `json:"type"`
	On                bool        `json:"on"`
	AutomationEnabled bool        `json:"automation_enabled"`
	SourceSensorID    string      `json:"source_sensor_id,omitempty"`
	Thresholds        *Hysteresis `json:"thresholds,omitempty"`
	SetPoint          float64     `json:"set_point,omitempty"`
	Level             int         `json:"level,omitempty"`
}

// Snapshot returns a consistent copy of the device state.
func (d *Device) Snapshot() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := State{
		ID:                d.ID,
		Name:              d.Name,
		Type:              d.Type,
		On:                d.on,
		AutomationEnabled: d.automation,
		SourceSensorID:    d.sourceSensorID,
		SetPoint:          d.setPoint,
		Level:             d.level,
	}
	if d.thresholds != nil {
		h := *d.thresholds
		s.Thresholds = &h
	}
	return s
}

// FromState rebuilds a device from a stored snapshot.
func FromState(s State) *Device {
	d := New(s.ID, s.Name, s.Type)
	d.on = s.On
	d.automation = s.AutomationEnabled
	d.sourceSensorID = NormalizeID(s.SourceSensorID)
	d.setPoint = s.SetPoint
	d.level = s.Level
	if s.Thresholds != nil {
		h := *s.Thresholds
		d.thresholds = &h
	}
	return d
}
