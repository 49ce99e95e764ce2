// Package sensorfeed produces sensor readings for the automation engine.
//
// Two sources exist. Simulator moves every registered sensor by a bounded
// random step on a fixed interval. MQTTIngest subscribes to the
// <prefix>/sensor/+/reading topics and forwards published values.
// Both deliver through the engine, so hysteresis decisions, persistence
// and notifications are identical whatever the source.
package sensorfeed
