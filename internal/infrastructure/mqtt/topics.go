package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds homesim topic names under a configurable prefix.
//
//	topics := mqtt.Topics{Prefix: "homesim"}
//	topics.SensorReading("lux")        // homesim/sensor/lux/reading
//	topics.Event("device.changed")     // homesim/events/device.changed
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return "homesim"
	}
	return p
}

// SystemStatus is the retained online/offline status topic, also used for
// the last will.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// Event returns the topic a notification of the given kind is published on.
func (t Topics) Event(kind string) string {
	return fmt.Sprintf("%s/events/%s", t.prefix(), kind)
}

// AllEvents matches every notification topic.
func (t Topics) AllEvents() string {
	return t.prefix() + "/events/#"
}

// DeviceState returns the retained power-state topic of a device.
func (t Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", t.prefix(), deviceID)
}

// SensorReading returns the topic readings for a sensor arrive on.
func (t Topics) SensorReading(sensorID string) string {
	return fmt.Sprintf("%s/sensor/%s/reading", t.prefix(), sensorID)
}

// AllSensorReadings matches the reading topic of every sensor.
func (t Topics) AllSensorReadings() string {
	return t.prefix() + "/sensor/+/reading"
}

// ParseSensorReading extracts the sensor id from a reading topic.
func (t Topics) ParseSensorReading(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/sensor/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/reading")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
