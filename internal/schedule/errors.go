package schedule

import "errors"

var (
	// ErrDeviceNotFound is returned when a task targets an unregistered device.
	ErrDeviceNotFound = errors.New("schedule: device not found")

	// ErrInvalidTime is returned when a timestamp is not "yyyy-MM-dd HH:mm".
	ErrInvalidTime = errors.New("schedule: invalid time")

	// ErrAlreadyRunning is returned by Start when the loop is running.
	ErrAlreadyRunning = errors.New("schedule: loop already running")
)
