// Package device models the actuators and sensors of a simulated home.
//
// A Device is an on/off state machine with two transitions, TurnOn and
// TurnOff, both idempotent and free of side effects: they report whether the
// state changed and leave notification to the caller. Devices also carry an
// automation flag, the id of the sensor driving them and a Hysteresis band.
//
// Commands arrive as text on scheduled tasks. ParseAction turns that text
// into one of a closed set of Action kinds, and Apply refuses kinds the
// device Type does not support with ErrUnsupportedAction:
//
//	light       ON OFF TOGGLE LEVEL <0-100>
//	thermostat  ON OFF TOGGLE SET_TEMP <5-35>
//	appliance   ON OFF TOGGLE
//	generic     ON OFF TOGGLE
//
// A Sensor holds a continuous reading and the ordered set of devices it
// drives ("slaves"). The Registry owns the canonical *Device instances that
// sensors, tasks and the API all share.
package device
