package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/homesim/internal/automation"
	"github.com/nerrad567/homesim/internal/clock"
	"github.com/nerrad567/homesim/internal/device"
	"github.com/nerrad567/homesim/internal/infrastructure/config"
	"github.com/nerrad567/homesim/internal/infrastructure/logging"
	"github.com/nerrad567/homesim/internal/notify"
	"github.com/nerrad567/homesim/internal/schedule"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Store persists what the handlers create or change directly.
type Store interface {
	SaveDevice(ctx context.Context, d *device.Device) error
	SaveSensor(ctx context.Context, s *device.Sensor) error
	device.HistoryRecorder
	device.HistoryReader
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Metrics   config.MetricsConfig
	Location  *time.Location
	Logger    *logging.Logger
	Registry  *device.Registry
	Scheduler *schedule.Scheduler
	Engine    *automation.Engine
	Store     Store
	Notifier  notify.Notifier
	Clock     clock.Clock

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer

	// Health lists the components reported by GET /api/v1/health.
	Health map[string]HealthChecker

	// Hub, if set, is used instead of a hub owned by the server. The
	// notifier chain needs the hub before the server starts.
	Hub *Hub

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	metrics   config.MetricsConfig
	loc       *time.Location
	logger    *logging.Logger
	registry  *device.Registry
	scheduler *schedule.Scheduler
	engine    *automation.Engine
	store     Store
	notifier  notify.Notifier
	clock     clock.Clock
	gatherer  prometheus.Gatherer
	health    map[string]HealthChecker
	version   string

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil || deps.Scheduler == nil || deps.Engine == nil {
		return nil, fmt.Errorf("registry, scheduler and engine are required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		metrics:   deps.Metrics,
		loc:       deps.Location,
		logger:    deps.Logger,
		registry:  deps.Registry,
		scheduler: deps.Scheduler,
		engine:    deps.Engine,
		store:     deps.Store,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		gatherer:  deps.Gatherer,
		health:    deps.Health,
		version:   deps.Version,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.notifier == nil {
		s.notifier = notify.Nop
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Handler returns the routed HTTP handler. Used by tests and by callers
// that serve the API on their own listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start builds the router and starts listening in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
