package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/runclub/clubsync/internal/models"
)

// SyncRunRepository keeps the structured outcome of every user sync run.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new sync run repository.
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Report stores one run outcome.
func (r *SyncRunRepository) Report(ctx context.Context, result models.SyncResult) error {
	if result.RunID == "" {
		result.RunID = uuid.NewString()
	}

	query := `
		INSERT INTO sync_runs (id, user_id, trigger_source, state, outcome, pages_fetched, accepted,
			rejected, duplicates, upserted, persist_failures, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		result.RunID,
		result.UserID,
		string(result.Trigger),
		string(result.State),
		string(result.Outcome),
		result.PagesFetched,
		result.Accepted,
		result.Rejected,
		result.Duplicates,
		result.Upserted,
		result.PersistFailures,
		result.Error,
		result.StartedAt,
		result.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", classify(err))
	}
	return nil
}

// ListRuns returns up to limit runs, newest first, optionally for one user.
func (r *SyncRunRepository) ListRuns(ctx context.Context, userID string, limit int) ([]models.SyncResult, error) {
	query := `
		SELECT id, user_id, trigger_source, state, outcome, pages_fetched, accepted, rejected,
			duplicates, upserted, persist_failures, error, started_at, finished_at
		FROM sync_runs
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1

	if userID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argPos)
		args = append(args, userID)
		argPos++
	}

	query += " ORDER BY started_at DESC"
	query += fmt.Sprintf(" LIMIT $%d", argPos)
	args = append(args, clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", classify(err))
	}
	defer rows.Close()

	runs := []models.SyncResult{}
	for rows.Next() {
		var (
			run                     models.SyncResult
			trigger, state, outcome string
		)
		err := rows.Scan(
			&run.RunID,
			&run.UserID,
			&trigger,
			&state,
			&outcome,
			&run.PagesFetched,
			&run.Accepted,
			&run.Rejected,
			&run.Duplicates,
			&run.Upserted,
			&run.PersistFailures,
			&run.Error,
			&run.StartedAt,
			&run.FinishedAt,
		)
		if err != nil {
			return nil, classify(err)
		}
		run.Trigger = models.SyncTrigger(trigger)
		run.State = models.SyncState(state)
		run.Outcome = models.SyncOutcome(outcome)
		runs = append(runs, run)
	}

	return runs, classify(rows.Err())
}
