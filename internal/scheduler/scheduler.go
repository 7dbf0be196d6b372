// Package scheduler re-runs the tracker on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/star/tlearchive/internal/tracker"
)

// Runner performs one fetch-and-append cycle.
type Runner interface {
	Run(ctx context.Context) (tracker.Outcome, error)
}

// Scheduler periodically runs a Runner. Runs never overlap.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger

	runs    atomic.Int64
	lastRun atomic.Pointer[time.Time]
}

// New creates a Scheduler.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the job and starts the scheduler. The first run starts immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.Info("scheduler started", "interval", s.interval.String())
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	outcome, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", "outcome", outcome, "error", err)
	} else {
		s.logger.Debug("scheduled run finished", "outcome", outcome)
	}
	now := time.Now()
	s.lastRun.Store(&now)
	s.runs.Add(1)
}

// Ready reports whether at least one run has finished.
func (s *Scheduler) Ready() bool {
	return s.runs.Load() > 0
}

// LastRun returns when the most recent run finished.
func (s *Scheduler) LastRun() (time.Time, bool) {
	t := s.lastRun.Load()
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
