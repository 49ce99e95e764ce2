// Package notify carries operator-facing events out of the scheduler and
// the automation engine.
//
// Producers call Notifier.Notify and never look at the result. Sinks in this
// package forward events to a structured logger, an MQTT topic tree, a Redis
// pub/sub channel, WebSocket subscribers and the time-series store. Network
// sinks should be wrapped in Async so a slow broker cannot stall a tick.
//
// Sinks must not call back into the scheduler or the engine: both may hold
// their own lock while notifying.
package notify
