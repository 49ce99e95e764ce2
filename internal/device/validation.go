package device

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

const (
	maxNameLength = 100
	maxIDLength   = 64
)

var idRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// ValidateID checks a normalized device or sensor id.
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLength || !idRegex.MatchString(id) {
		return fmt.Errorf("%w: id %q must be 1-%d of [a-z0-9_.-]", ErrInvalidDevice, id, maxIDLength)
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// Validate checks a device created through the API.
func (d *Device) Validate() error {
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if _, err := ParseType(string(d.Type)); err != nil {
		return fmt.Errorf("%w: %q", err, d.Type)
	}
	return nil
}

// ValidateSensor checks a sensor created through the API.
func ValidateSensor(s *Sensor) error {
	if err := ValidateID(s.ID); err != nil {
		return err
	}
	return ValidateName(s.Name)
}
