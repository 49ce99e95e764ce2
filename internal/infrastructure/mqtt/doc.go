// Package mqtt connects homesim to an MQTT broker.
//
// The client publishes notifications under <prefix>/events/<kind>, retained
// device states under <prefix>/device/<id>/state and its own status under
// <prefix>/system/status (with a last will for crashes). Sensor readings
// are accepted on <prefix>/sensor/<id>/reading.
//
// Subscriptions are tracked and restored after a reconnect. Handlers run on
// paho's goroutines with panic recovery.
package mqtt
