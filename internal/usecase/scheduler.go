package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"UCGInformation/internal/ports"
)

// Scheduler wires the loop driver with the relay and contains every cycle failure.
type Scheduler struct {
	driver ports.Scheduler
	relay  *Relay
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop the relay loop.
func NewScheduler(driver ports.Scheduler, relay *Relay, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, relay: relay, logger: log}
}

// Start registers the relay cycle with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.relay == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("relay cycle failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// RunOnce executes one cycle, converting a panic into an error.
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("relay cycle panicked", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("relay cycle panicked: %v", rec)
		}
	}()
	return s.relay.RunCycle(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
