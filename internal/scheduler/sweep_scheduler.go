// Package scheduler runs the recurring all-users activity sweep.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/runclub/clubsync/internal/models"
)

// Sweeper syncs every known user once.
type Sweeper interface {
	SyncAllUsers(ctx context.Context) models.SweepReport
}

// SweepScheduler triggers one sweep per interval. Sweeps never overlap: a tick that
// fires while a sweep is still running is skipped.
type SweepScheduler struct {
	sweeper    Sweeper
	logger     *slog.Logger
	interval   time.Duration
	runOnStart bool

	running  atomic.Bool
	skipped  atomic.Int64
	stopChan chan struct{}

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewSweepScheduler creates a scheduler that sweeps every interval.
func NewSweepScheduler(sweeper Sweeper, interval time.Duration, runOnStart bool, logger *slog.Logger) *SweepScheduler {
	return &SweepScheduler{
		sweeper:    sweeper,
		logger:     logger,
		interval:   interval,
		runOnStart: runOnStart,
		stopChan:   make(chan struct{}),
	}
}

// Start runs the scheduler loop until Stop is called or ctx is cancelled. It blocks.
func (s *SweepScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting sweep scheduler", "interval", s.interval, "run_on_start", s.runOnStart)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.TriggerSweep(ctx)
	}

	for {
		select {
		case <-ticker.C:
			s.TriggerSweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Sweep scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Sweep scheduler stopping due to context cancellation")
			return
		}
	}
}

// TriggerSweep starts a sweep in the background unless one is already running. It
// reports whether a sweep was started.
func (s *SweepScheduler) TriggerSweep(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}

	if !s.running.CompareAndSwap(false, true) {
		n := s.skipped.Add(1)
		s.logger.Warn("Previous sweep still running, skipping trigger", "skipped_total", n)
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Recovered panic during sweep", "panic", r)
			}
		}()

		report := s.sweeper.SyncAllUsers(ctx)
		if report.Err != nil {
			s.logger.Error("Scheduled sweep failed", "sweep_id", report.RunID, "error", report.Err)
		}
	}()
	return true
}

// Running reports whether a sweep is in progress.
func (s *SweepScheduler) Running() bool {
	return s.running.Load()
}

// Skipped returns how many triggers were dropped because a sweep was running.
func (s *SweepScheduler) Skipped() int64 {
	return s.skipped.Load()
}

// Stop ends the loop and waits for an in-flight sweep to return.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
