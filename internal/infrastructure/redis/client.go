package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/homesim/internal/infrastructure/config"
)

const (
	defaultPingTimeout  = 5 * time.Second
	defaultWriteTimeout = 2 * time.Second
	defaultReadingTTL   = 24 * time.Hour
	defaultChannel      = "homesim:events"
)

// Logger defines the logging interface used by the client.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Client wraps a go-redis client with the event channel publisher and
// the last-reading cache.
type Client struct {
	rdb *goredis.Client
	cfg config.RedisConfig

	mu        sync.RWMutex
	connected bool
	logger    Logger
}

// Connect dials Redis and verifies the connection with a PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.EventsChannel == "" {
		cfg.EventsChannel = defaultChannel
	}
	if cfg.ReadingTTL <= 0 {
		cfg.ReadingTTL = defaultReadingTTL
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Client{rdb: rdb, cfg: cfg, connected: true, logger: noopLogger{}}, nil
}

// SetLogger sets the logger for cache write failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// EventsChannel returns the pub/sub channel used for engine events.
func (c *Client) EventsChannel() string {
	return c.cfg.EventsChannel
}

// Publish sends payload on channel. It satisfies the notifier's
// ChannelPublisher interface.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a pub/sub subscription for channel. The caller
// closes it.
func (c *Client) Subscribe(ctx context.Context, channel string) *goredis.PubSub {
	return c.rdb.Subscribe(ctx, channel)
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := c.rdb.Ping(checkCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// IsConnected returns false once Close has been called.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close releases the connection pool. Safe to call more than once.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()
	if !wasConnected {
		return nil
	}
	return c.rdb.Close()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}
