// Package api implements the HTTP REST API and WebSocket event stream for
// homesim.
//
// This package provides:
//   - REST endpoints for devices, sensors, scheduled tasks and automation links
//   - Manual device commands that cancel conflicting scheduled tasks
//   - A WebSocket hub that relays engine events to subscribed clients
//   - The Prometheus scrape endpoint
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Handlers are thin: they decode the request, call the scheduler, the
// automation engine or the device registry, and encode the result. Every
// state change still flows through the domain packages, so notifications,
// persistence and history are identical for API and internal callers.
//
// # WebSocket
//
// Clients connect to /api/v1/ws and send
//
//	{"type":"subscribe","payload":{"channels":["device.changed"]}}
//
// Channels are event kinds. The "*" channel receives every event.
package api
