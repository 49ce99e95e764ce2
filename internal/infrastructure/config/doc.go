// Package config loads and validates homesim configuration.
//
// Configuration is layered:
//   - hardcoded defaults
//   - a YAML file
//   - an optional .env file (never overriding variables already set)
//   - HOMESIM_* environment variables
//
// Secrets (MQTT password, InfluxDB token, Redis password) should be supplied
// through the environment rather than the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Scheduler.TickInterval)
package config
