// Package syncer pulls each user's running activities from the provider into the
// store, one user at a time per id, and sweeps all users on a schedule.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/runclub/clubsync/internal/models"
	"github.com/runclub/clubsync/internal/normalize"
)

// Store is the persistence the orchestrator writes to.
type Store interface {
	UpsertActivity(ctx context.Context, activity models.Activity) error
	SetLastSyncAt(ctx context.Context, userID string, ts time.Time) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// TokenSource yields a usable provider access token for a user.
type TokenSource interface {
	EnsureValid(ctx context.Context, userID string) (string, error)
}

// ActivitySource walks a user's activity feed page by page, starting at page 1.
type ActivitySource interface {
	Pages(ctx context.Context, accessToken string) iter.Seq2[[]models.RawActivity, error]
}

// Normalizer filters and maps raw provider records.
type Normalizer interface {
	Accept(userID string, raw models.RawActivity) (models.Activity, bool)
}

// Reporter receives the outcome of every user run. Errors are logged and never
// change the outcome.
type Reporter interface {
	Report(ctx context.Context, result models.SyncResult) error
}

// SweepObserver is told about every finished sweep.
type SweepObserver interface {
	ObserveSweep(report models.SweepReport)
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store      Store
	Tokens     TokenSource
	Source     ActivitySource
	Normalizer Normalizer
	Reporters  []Reporter
	Observers  []SweepObserver

	// SweepConcurrency bounds how many users a sweep syncs at once.
	SweepConcurrency int
	// ReportTimeout bounds each reporter call.
	ReportTimeout time.Duration
}

const (
	defaultSweepConcurrency = 4
	defaultReportTimeout    = 10 * time.Second
)

// Orchestrator runs user syncs. At most one sync per user id is in progress at any
// time, whether scheduled or requested on demand.
type Orchestrator struct {
	store            Store
	tokens           TokenSource
	source           ActivitySource
	normalizer       Normalizer
	reporters        []Reporter
	observers        []SweepObserver
	sweepConcurrency int
	reportTimeout    time.Duration
	logger           *slog.Logger
	locks            *keyedMutex
	now              func() time.Time
}

// NewOrchestrator creates an orchestrator. A nil Normalizer selects the running
// disciplines filter.
func NewOrchestrator(cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New()
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = defaultSweepConcurrency
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = defaultReportTimeout
	}

	return &Orchestrator{
		store:            cfg.Store,
		tokens:           cfg.Tokens,
		source:           cfg.Source,
		normalizer:       cfg.Normalizer,
		reporters:        cfg.Reporters,
		observers:        cfg.Observers,
		sweepConcurrency: cfg.SweepConcurrency,
		reportTimeout:    cfg.ReportTimeout,
		logger:           logger,
		locks:            newKeyedMutex(),
		now:              time.Now,
	}
}

// SyncUser runs one sync for userID and returns its structured outcome. It never
// panics and never returns an error; failures are recorded on the result.
func (o *Orchestrator) SyncUser(ctx context.Context, userID string, trigger models.SyncTrigger) (result models.SyncResult) {
	result = models.SyncResult{
		RunID:     uuid.NewString(),
		UserID:    userID,
		Trigger:   trigger,
		State:     models.SyncStateIdle,
		StartedAt: o.now(),
	}
	logger := o.logger.With("user_id", userID, "run_id", result.RunID, "trigger", string(trigger))

	unlock, err := o.locks.Lock(ctx, userID)
	if err != nil {
		fail(&result, fmt.Errorf("wait for in-flight sync: %w", err))
		o.finish(ctx, logger, &result)
		return result
	}
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered panic during sync", "panic", r, "stack", string(debug.Stack()))
			fail(&result, fmt.Errorf("panic during sync: %v", r))
		}
		o.finish(ctx, logger, &result)
	}()

	o.run(ctx, logger, &result)
	return result
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, result *models.SyncResult) {
	result.State = models.SyncStateRefreshing
	token, err := o.tokens.EnsureValid(ctx, result.UserID)
	if err != nil {
		fail(result, err)
		return
	}

	seen := normalize.NewSeenSet()
	result.State = models.SyncStateFetching
	for page, err := range o.source.Pages(ctx, token) {
		if err != nil {
			// Everything upserted so far stays; lastSyncAt is left alone so the next
			// run starts again from page 1.
			fail(result, err)
			return
		}
		result.PagesFetched++
		result.State = models.SyncStatePersisting

		for _, raw := range page {
			activity, ok := o.normalizer.Accept(result.UserID, raw)
			if !ok {
				result.Rejected++
				continue
			}
			if !seen.Mark(activity.ExternalID) {
				result.Duplicates++
				continue
			}
			result.Accepted++

			if err := o.store.UpsertActivity(ctx, activity); err != nil {
				perr := &models.PersistenceError{Op: "upsert activity", ExternalID: activity.ExternalID, Err: err}
				if perr.Systemic() {
					fail(result, perr)
					return
				}
				result.PersistFailures++
				logger.Warn("Failed to store activity", "external_id", activity.ExternalID, "error", err)
				continue
			}
			result.Upserted++
		}

		logger.Debug("Processed activity page",
			"page", result.PagesFetched,
			"records", len(page),
			"upserted", result.Upserted,
		)
		result.State = models.SyncStateFetching
	}

	if err := o.store.SetLastSyncAt(ctx, result.UserID, o.now()); err != nil {
		fail(result, &models.PersistenceError{Op: "set last sync time", Err: err})
		return
	}

	result.State = models.SyncStateCompleted
	result.Outcome = models.SyncOutcomeSuccess
	if result.PersistFailures > 0 {
		result.Outcome = models.SyncOutcomePartial
	}
}

func fail(result *models.SyncResult, err error) {
	result.State = models.SyncStateFailed
	result.Outcome = models.SyncOutcomeFailed
	result.Err = err
	result.Error = err.Error()
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, result *models.SyncResult) {
	result.FinishedAt = o.now()

	attrs := []any{
		"outcome", string(result.Outcome),
		"pages", result.PagesFetched,
		"accepted", result.Accepted,
		"rejected", result.Rejected,
		"duplicates", result.Duplicates,
		"upserted", result.Upserted,
		"persist_failures", result.PersistFailures,
		"duration", result.Duration(),
	}
	switch result.Outcome {
	case models.SyncOutcomeFailed:
		logger.Error("Activity sync failed", append(attrs, "error", result.Err, "kind", errorKind(result.Err))...)
	case models.SyncOutcomePartial:
		logger.Warn("Activity sync completed with errors", attrs...)
	default:
		logger.Info("Activity sync completed", attrs...)
	}

	if len(o.reporters) == 0 {
		return
	}

	// Reporting outlives a cancelled run so shutdowns still leave a record.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.reportTimeout)
	defer cancel()
	for _, r := range o.reporters {
		if err := r.Report(reportCtx, *result); err != nil {
			logger.Warn("Failed to report sync result", "reporter", fmt.Sprintf("%T", r), "error", err)
		}
	}
}

// errorKind names the failure class for log filtering.
func errorKind(err error) string {
	var (
		credErr    *models.CredentialError
		fetchErr   *models.FetchError
		persistErr *models.PersistenceError
	)
	switch {
	case errors.As(err, &credErr):
		return "credential"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &persistErr):
		return "persistence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

// SyncAllUsers syncs every known user with bounded concurrency. One user's failure
// never stops or delays the others; failures are collected on the report.
func (o *Orchestrator) SyncAllUsers(ctx context.Context) models.SweepReport {
	report := models.SweepReport{
		RunID:     uuid.NewString(),
		StartedAt: o.now(),
	}
	logger := o.logger.With("sweep_id", report.RunID)

	ids, err := o.store.ListUserIDs(ctx)
	if err != nil {
		report.Err = &models.PersistenceError{Op: "list users", Err: err}
		report.Error = report.Err.Error()
		report.FinishedAt = o.now()
		logger.Error("Failed to list users for sweep", "error", err)
		o.observe(report)
		return report
	}

	logger.Info("Starting activity sweep", "users", len(ids), "concurrency", o.sweepConcurrency)

	results := make([]models.SyncResult, len(ids))
	var g errgroup.Group
	g.SetLimit(o.sweepConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = o.SyncUser(ctx, id, models.SyncTriggerScheduled)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	for _, res := range results {
		if res.Failed() {
			report.Failures++
		}
	}
	report.FinishedAt = o.now()

	logger.Info("Activity sweep finished",
		"users", len(ids),
		"failures", report.Failures,
		"failed_users", report.FailedUsers(),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	o.observe(report)
	return report
}

func (o *Orchestrator) observe(report models.SweepReport) {
	for _, obs := range o.observers {
		obs.ObserveSweep(report)
	}
}
