package automation

import "github.com/nerrad567/homesim/internal/device"

// Decision is the outcome of comparing a reading against a hysteresis band.
type Decision int

// Decisions.
const (
	NoChange Decision = iota
	SwitchOn
	SwitchOff
)

// String returns the direction label used in logs and metrics.
func (d Decision) String() string {
	switch d {
	case SwitchOn:
		return "on"
	case SwitchOff:
		return "off"
	default:
		return "none"
	}
}

// Decide applies the band to value for a device currently in state on.
//
// Both bounds are inclusive and the on rule is tried first. Between the
// bounds nothing changes, so repeating a reading never flips the device
// again. With lo == hi a reading at the bound switches an off device on
// and an on device off.
func Decide(h device.Hysteresis, value float64, on bool) Decision {
	if value <= h.TurnOnBelow && !on {
		return SwitchOn
	}
	if value >= h.TurnOffAbove && on {
		return SwitchOff
	}
	return NoChange
}
