package device

import "errors"

var (
	ErrDeviceNotFound = errors.New("device: not found")
	ErrDeviceExists   = errors.New("device: already exists")

	// ErrInvalidDevice covers malformed ids as well as whole-record checks.
	ErrInvalidDevice = errors.New("device: invalid")
	ErrInvalidName   = errors.New("device: invalid name")
	ErrInvalidType   = errors.New("device: invalid type")

	// ErrInvalidThresholds is a band with TurnOnBelow above TurnOffAbove,
	// or a bound that is NaN or infinite.
	ErrInvalidThresholds = errors.New("device: invalid thresholds")

	// ErrInvalidAction means the action text did not parse. A parsed
	// action the device cannot perform is ErrUnsupportedAction.
	ErrInvalidAction     = errors.New("device: invalid action")
	ErrUnsupportedAction = errors.New("device: unsupported action")
)
