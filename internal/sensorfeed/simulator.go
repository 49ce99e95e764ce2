package sensorfeed

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/homesim/internal/infrastructure/config"
)

// ErrAlreadyRunning is returned by Start on a running simulator.
var ErrAlreadyRunning = errors.New("sensorfeed: simulator already running")

// Simulator walks every sensor's value by a uniform step in
// [-MaxStep, MaxStep] per interval, starting from its last reading
// (zero if it has none).
type Simulator struct {
	engine   Engine
	interval time.Duration
	maxStep  float64

	rngMu sync.Mutex
	rng   *rand.Rand

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	logger Logger
}

// NewSimulator creates a simulator from cfg. A zero seed picks a random one.
func NewSimulator(engine Engine, cfg config.SimulatorConfig) *Simulator {
	seed := uint64(cfg.Seed) // #nosec G115 -- any bit pattern is a valid seed
	if cfg.Seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulator{
		engine:   engine,
		interval: cfg.Interval,
		maxStep:  math.Abs(cfg.MaxStep),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *Simulator) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Step feeds one simulated reading per sensor and returns how many
// devices switched.
func (s *Simulator) Step(ctx context.Context) int {
	switched := 0
	for _, sensor := range s.engine.Sensors() {
		current, _ := sensor.Reading()
		next := current + s.step()
		switched += len(s.engine.OnReading(ctx, sensor, next))
	}
	return switched
}

func (s *Simulator) step() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return (s.rng.Float64()*2 - 1) * s.maxStep
}

// Start runs Step every interval until Stop or ctx is cancelled.
func (s *Simulator) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("sensorfeed: simulator interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)

	s.logger.Info("sensor simulator started", "interval", s.interval.String(), "max_step", s.maxStep)
	return nil
}

func (s *Simulator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Step(ctx); n > 0 {
				s.logger.Debug("simulated readings switched devices", "count", n)
			}
		}
	}
}

// Stop halts the loop and waits for a step in progress.
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
