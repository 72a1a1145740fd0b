package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/runclub/clubsync/internal/logging"
	"github.com/runclub/clubsync/internal/models"
)

type blockingSweeper struct {
	calls   atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
	release chan struct{}
}

func newBlockingSweeper() *blockingSweeper {
	return &blockingSweeper{release: make(chan struct{})}
}

func (b *blockingSweeper) SyncAllUsers(ctx context.Context) models.SweepReport {
	b.calls.Add(1)
	if b.active.Add(1) > 1 {
		b.overlap.Store(true)
	}
	defer b.active.Add(-1)

	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return models.SweepReport{RunID: "sweep"}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestTriggerSweepSkipsWhileRunning(t *testing.T) {
	sweeper := newBlockingSweeper()
	s := NewSweepScheduler(sweeper, time.Hour, false, logging.Discard())

	if !s.TriggerSweep(context.Background()) {
		t.Fatal("first trigger should start a sweep")
	}
	waitFor(t, func() bool { return sweeper.calls.Load() == 1 })

	if s.TriggerSweep(context.Background()) {
		t.Error("second trigger should be skipped while a sweep runs")
	}
	if s.Skipped() != 1 {
		t.Errorf("expected 1 skipped trigger, got %d", s.Skipped())
	}

	close(sweeper.release)
	waitFor(t, func() bool { return !s.Running() })

	if !s.TriggerSweep(context.Background()) {
		t.Error("trigger after completion should start a new sweep")
	}
	s.Stop()

	if sweeper.calls.Load() != 2 {
		t.Errorf("expected 2 sweeps, got %d", sweeper.calls.Load())
	}
	if sweeper.overlap.Load() {
		t.Error("sweeps overlapped")
	}
}

func TestSchedulerTicksWithoutOverlap(t *testing.T) {
	sweeper := newBlockingSweeper()
	s := NewSweepScheduler(sweeper, 5*time.Millisecond, true, logging.Discard())

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	waitFor(t, func() bool { return s.Skipped() >= 3 })
	close(sweeper.release)
	s.Stop()
	<-done

	if sweeper.overlap.Load() {
		t.Error("sweeps overlapped")
	}
	if s.Running() {
		t.Error("Stop returned with a sweep still running")
	}
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	sweeper := newBlockingSweeper()
	close(sweeper.release)
	s := NewSweepScheduler(sweeper, time.Hour, false, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
	if sweeper.calls.Load() != 0 {
		t.Errorf("expected no sweeps without run-on-start, got %d", sweeper.calls.Load())
	}
}

func TestTriggerAfterStopIsIgnored(t *testing.T) {
	sweeper := newBlockingSweeper()
	s := NewSweepScheduler(sweeper, time.Hour, false, logging.Discard())
	s.Stop()

	if s.TriggerSweep(context.Background()) {
		t.Error("trigger after Stop should not start a sweep")
	}
	s.Stop()
}
