package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/runclub/clubsync/internal/models"
)

var (
	// ErrQueueFull is returned by Trigger when no more jobs can be buffered.
	ErrQueueFull = errors.New("sync queue is full")
	// ErrWorkerStopped is returned by Trigger before Start or after Stop.
	ErrWorkerStopped = errors.New("sync worker is not running")
)

// UserSyncer runs a single user's sync to completion.
type UserSyncer interface {
	SyncUser(ctx context.Context, userID string, trigger models.SyncTrigger) models.SyncResult
}

type job struct {
	userID     string
	trigger    models.SyncTrigger
	enqueuedAt time.Time
}

// Worker executes on-demand syncs in the background. Triggers for a user that is
// already queued coalesce into the queued job. Failed runs are published on the
// channel returned by Failures.
type Worker struct {
	syncer   UserSyncer
	logger   *slog.Logger
	workers  int
	jobs     chan job
	failures chan models.SyncResult
	quit     chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	running bool
	stopped bool
	wg      sync.WaitGroup
}

// NewWorker creates a worker pool with the given number of goroutines and queue size.
func NewWorker(syncer UserSyncer, workers, queueSize int, logger *slog.Logger) *Worker {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	return &Worker{
		syncer:   syncer,
		logger:   logger,
		workers:  workers,
		jobs:     make(chan job, queueSize),
		failures: make(chan models.SyncResult, queueSize),
		quit:     make(chan struct{}),
		pending:  make(map[string]struct{}),
	}
}

// Start launches the worker goroutines. Runs use ctx, so cancelling it aborts
// in-flight syncs at their next network call.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.stopped {
		return
	}
	w.running = true

	w.logger.Info("Starting sync worker", "workers", w.workers, "queue_size", cap(w.jobs))
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop(ctx)
	}
}

// Trigger queues a sync for userID and returns immediately.
func (w *Worker) Trigger(userID string, trigger models.SyncTrigger) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running || w.stopped {
		return ErrWorkerStopped
	}
	if _, queued := w.pending[userID]; queued {
		w.logger.Debug("Sync already queued", "user_id", userID, "trigger", string(trigger))
		return nil
	}

	select {
	case w.jobs <- job{userID: userID, trigger: trigger, enqueuedAt: time.Now()}:
		w.pending[userID] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

// Failures delivers the result of every failed background run. The channel is
// closed by Stop. Results are dropped when nobody keeps up with the channel.
func (w *Worker) Failures() <-chan models.SyncResult {
	return w.failures
}

// Stop stops accepting triggers, waits for in-flight runs and discards queued jobs.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.quit)
	w.wg.Wait()

	if dropped := len(w.jobs); dropped > 0 {
		w.logger.Warn("Discarded queued syncs on shutdown", "count", dropped)
	}
	close(w.failures)
	w.logger.Info("Sync worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		// Prefer shutdown over picking up more work.
		select {
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case j := <-w.jobs:
			w.process(ctx, j)
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, j job) {
	// A trigger arriving while this run is in progress queues a follow-up.
	w.mu.Lock()
	delete(w.pending, j.userID)
	w.mu.Unlock()

	w.logger.Debug("Running queued sync",
		"user_id", j.userID,
		"trigger", string(j.trigger),
		"queued_for", time.Since(j.enqueuedAt),
	)

	result := w.syncer.SyncUser(ctx, j.userID, j.trigger)
	if !result.Failed() {
		return
	}

	select {
	case w.failures <- result:
	default:
		w.logger.Warn("Dropped sync failure notification", "user_id", j.userID, "run_id", result.RunID)
	}
}
