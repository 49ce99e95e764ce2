// Package logging provides structured logging for homesim.
//
// It wraps log/slog so every record carries the service name and build
// version, and lets each subsystem tag its records with a component field.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	sched := schedule.NewScheduler(registry, store, clk)
//	sched.SetLogger(logger.Component("scheduler"))
package logging
