// Package redis connects the engine to Redis for two jobs: publishing
// engine events on a pub/sub channel and caching the last reading of
// every sensor under sensor:reading:<id> with a TTL.
package redis
