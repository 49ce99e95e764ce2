package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const readingKeyPrefix = "sensor:reading:"

func readingKey(sensorID string) string { return readingKeyPrefix + sensorID }

// Reading is the cached last value of a sensor.
type Reading struct {
	SensorID string    `json:"sensor_id"`
	Unit     string    `json:"unit,omitempty"`
	Value    float64   `json:"value"`
	At       time.Time `json:"at"`
}

// RecordReading caches the latest reading of a sensor with the
// configured TTL. Failures are logged and otherwise ignored so a Redis
// outage never blocks the engine.
func (c *Client) RecordReading(ctx context.Context, sensorID, unit string, value float64, at time.Time) {
	if err := c.SetReading(ctx, Reading{SensorID: sensorID, Unit: unit, Value: value, At: at.UTC()}); err != nil {
		c.log().Warn("failed to cache sensor reading", "sensor_id", sensorID, "error", err)
	}
}

// SetReading stores r under the sensor's key.
func (c *Client) SetReading(ctx context.Context, r Reading) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	if err := c.rdb.Set(writeCtx, readingKey(r.SensorID), b, c.cfg.ReadingTTL).Err(); err != nil {
		return fmt.Errorf("caching reading for %s: %w", r.SensorID, err)
	}
	return nil
}

// LastReading returns the cached reading for sensorID. ok is false when
// nothing is cached or the entry expired.
func (c *Client) LastReading(ctx context.Context, sensorID string) (Reading, bool, error) {
	if !c.IsConnected() {
		return Reading{}, false, ErrNotConnected
	}
	b, err := c.rdb.Get(ctx, readingKey(sensorID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Reading{}, false, nil
	}
	if err != nil {
		return Reading{}, false, fmt.Errorf("reading cache for %s: %w", sensorID, err)
	}
	var r Reading
	if err := json.Unmarshal(b, &r); err != nil {
		return Reading{}, false, fmt.Errorf("decoding cached reading for %s: %w", sensorID, err)
	}
	return r, true, nil
}

// ForgetReading drops the cached reading, used when a sensor is removed.
func (c *Client) ForgetReading(ctx context.Context, sensorID string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.rdb.Del(ctx, readingKey(sensorID)).Err()
}
