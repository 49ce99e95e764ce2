package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// Start runs Tick every interval until Stop is called.
//
// A tick that is still running when the next one is due is skipped rather
// than queued. Ticks run with ctx's values but are not cancelled by it, so
// a sweep always completes once started.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, loc *time.Location) error {
	if interval < time.Second {
		return fmt.Errorf("schedule: tick interval %s is below one second", interval)
	}
	if loc == nil {
		loc = time.UTC
	}

	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.cron != nil {
		return ErrAlreadyRunning
	}

	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	tickCtx := context.WithoutCancel(ctx)
	if _, err := c.AddFunc("@every "+interval.String(), func() {
		s.Tick(tickCtx, s.clock.Now())
	}); err != nil {
		return fmt.Errorf("registering tick: %w", err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("scheduler started", "interval", interval.String(), "location", loc.String())
	return nil
}

// Stop stops future ticks and waits for a tick in progress to finish.
func (s *Scheduler) Stop() {
	s.loopMu.Lock()
	c := s.cron
	s.cron = nil
	s.loopMu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.cron != nil
}
