package automation

import "errors"

// Domain errors for the automation package.
var (
	// ErrSensorNotFound is returned when a sensor ID is not registered.
	ErrSensorNotFound = errors.New("automation: sensor not found")

	// ErrDeviceNotFound is returned when a device ID is not registered.
	ErrDeviceNotFound = errors.New("automation: device not found")

	// ErrNotCanonical describes a device or sensor that shares an id with a
	// registered one but is a different instance. Link reports it in the
	// not-found event message.
	ErrNotCanonical = errors.New("automation: not the registered instance")
)
