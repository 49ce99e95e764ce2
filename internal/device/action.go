package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ActionKind enumerates the commands a device can be given.
type ActionKind int

// Action kinds. ActionUnknown is never produced by ParseAction.
const (
	ActionUnknown ActionKind = iota
	ActionOn
	ActionOff
	ActionToggle
	ActionSetTemperature
	ActionSetLevel
)

// Thermostat and dimmer bounds.
const (
	MinSetPoint = 5.0
	MaxSetPoint = 35.0
	MaxLevel    = 100
)

func (k ActionKind) String() string {
	switch k {
	case ActionOn:
		return "ON"
	case ActionOff:
		return "OFF"
	case ActionToggle:
		return "TOGGLE"
	case ActionSetTemperature:
		return "SET_TEMP"
	case ActionSetLevel:
		return "LEVEL"
	default:
		return "UNKNOWN"
	}
}

// capabilities lists the action kinds each device type accepts.
var capabilities = map[Type][]ActionKind{
	TypeLight:      {ActionOn, ActionOff, ActionToggle, ActionSetLevel},
	TypeThermostat: {ActionOn, ActionOff, ActionToggle, ActionSetTemperature},
	TypeAppliance:  {ActionOn, ActionOff, ActionToggle},
	TypeGeneric:    {ActionOn, ActionOff, ActionToggle},
}

// Supports reports whether devices of type t accept actions of kind k.
func (t Type) Supports(k ActionKind) bool {
	for _, c := range capabilities[t] {
		if c == k {
			return true
		}
	}
	return false
}

// Action is a parsed device command. Value is only meaningful for
// ActionSetTemperature (degrees) and ActionSetLevel (0-100).
type Action struct {
	Kind  ActionKind
	Value float64
}

// String renders the action in its canonical text form, which ParseAction
// accepts back.
func (a Action) String() string {
	switch a.Kind {
	case ActionSetTemperature:
		return fmt.Sprintf("%s %s", a.Kind, strconv.FormatFloat(a.Value, 'f', -1, 64))
	case ActionSetLevel:
		return fmt.Sprintf("%s %d", a.Kind, int(a.Value))
	default:
		return a.Kind.String()
	}
}

// IsSwitch reports whether the action is a plain on or off command.
func (a Action) IsSwitch() bool {
	return a.Kind == ActionOn || a.Kind == ActionOff
}

// ParseAction parses the free-form action text stored on scheduled tasks.
//
// Accepted forms (case-insensitive): ON, OFF, TOGGLE, SET_TEMP <deg>,
// LEVEL <0-100>. TURN_ON/TURN_OFF, TEMP and DIM are accepted as aliases.
func ParseAction(s string) (Action, error) {
	fields := strings.Fields(strings.ToUpper(s))
	if len(fields) == 0 {
		return Action{}, fmt.Errorf("%w: empty action", ErrInvalidAction)
	}

	var kind ActionKind
	switch fields[0] {
	case "ON", "TURN_ON":
		kind = ActionOn
	case "OFF", "TURN_OFF":
		kind = ActionOff
	case "TOGGLE":
		kind = ActionToggle
	case "SET_TEMP", "SET_TEMPERATURE", "TEMP":
		kind = ActionSetTemperature
	case "LEVEL", "DIM":
		kind = ActionSetLevel
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}

	needsValue := kind == ActionSetTemperature || kind == ActionSetLevel
	switch {
	case needsValue && len(fields) != 2:
		return Action{}, fmt.Errorf("%w: %s needs exactly one value", ErrInvalidAction, kind)
	case !needsValue && len(fields) != 1:
		return Action{}, fmt.Errorf("%w: %s takes no value", ErrInvalidAction, kind)
	case !needsValue:
		return Action{Kind: kind}, nil
	}

	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Action{}, fmt.Errorf("%w: bad value %q", ErrInvalidAction, fields[1])
	}

	switch kind {
	case ActionSetTemperature:
		if v < MinSetPoint || v > MaxSetPoint {
			return Action{}, fmt.Errorf("%w: set point %.1f outside %.0f-%.0f", ErrInvalidAction, v, MinSetPoint, MaxSetPoint)
		}
	case ActionSetLevel:
		if v < 0 || v > MaxLevel || v != math.Trunc(v) {
			return Action{}, fmt.Errorf("%w: level must be an integer 0-%d", ErrInvalidAction, MaxLevel)
		}
	}
	return Action{Kind: kind, Value: v}, nil
}

// Outcome reports the effect of applying an action.
type Outcome struct {
	// Changed is true when any observable state (power, set point, level) changed.
	Changed bool
	// On is the power state after the action.
	On bool
}

// Apply executes a on the device. It returns ErrUnsupportedAction when the
// device type does not accept the action kind; the device is unchanged.
//
// Apply only mutates state. Reporting the change is the caller's job.
func (d *Device) Apply(a Action) (Outcome, error) {
	if !d.Type.Supports(a.Kind) {
		return Outcome{On: d.IsOn()}, fmt.Errorf("%w: %s on %s device %q", ErrUnsupportedAction, a.Kind, d.Type, d.ID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var changed bool
	switch a.Kind {
	case ActionOn:
		changed = d.setOnLocked(true)
	case ActionOff:
		changed = d.setOnLocked(false)
	case ActionToggle:
		changed = d.setOnLocked(!d.on)
	case ActionSetTemperature:
		if d.setPoint != a.Value {
			d.setPoint = a.Value
			changed = true
		}
		// A new set point also switches the heating on.
		if d.setOnLocked(true) {
			changed = true
		}
	case ActionSetLevel:
		level := int(a.Value)
		if d.level != level {
			d.level = level
			changed = true
		}
		if d.setOnLocked(level > 0) {
			changed = true
		}
	}
	return Outcome{Changed: changed, On: d.on}, nil
}

// Execute parses text and applies it. Parse failures wrap ErrInvalidAction.
func (d *Device) Execute(text string) (Action, Outcome, error) {
	a, err := ParseAction(text)
	if err != nil {
		return Action{}, Outcome{On: d.IsOn()}, err
	}
	out, err := d.Apply(a)
	return a, out, err
}
