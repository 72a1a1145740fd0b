package models

import "time"

// SyncState is the lifecycle position of one user sync attempt.
type SyncState string

const (
	SyncStateIdle       SyncState = "idle"
	SyncStateRefreshing SyncState = "refreshing_credential"
	SyncStateFetching   SyncState = "fetching"
	SyncStatePersisting SyncState = "persisting"
	SyncStateCompleted  SyncState = "completed"
	SyncStateFailed     SyncState = "failed"
)

// SyncOutcome summarises how a run ended.
type SyncOutcome string

const (
	SyncOutcomeSuccess SyncOutcome = "success"
	// SyncOutcomePartial means all pages were walked but some records could not be stored.
	SyncOutcomePartial SyncOutcome = "partial"
	SyncOutcomeFailed  SyncOutcome = "failed"
)

// SyncTrigger records what started a run.
type SyncTrigger string

const (
	SyncTriggerScheduled  SyncTrigger = "scheduled"
	SyncTriggerManual     SyncTrigger = "manual"
	SyncTriggerOnboarding SyncTrigger = "onboarding"
)

// SyncResult is the structured report of one user sync run.
type SyncResult struct {
	RunID           string      `json:"run_id"`
	UserID          string      `json:"user_id"`
	Trigger         SyncTrigger `json:"trigger"`
	State           SyncState   `json:"state"`
	Outcome         SyncOutcome `json:"outcome"`
	PagesFetched    int         `json:"pages_fetched"`
	Accepted        int         `json:"accepted"`
	Rejected        int         `json:"rejected"`
	Duplicates      int         `json:"duplicates"`
	Upserted        int         `json:"upserted"`
	PersistFailures int         `json:"persist_failures"`
	Err             error       `json:"-"`
	Error           string      `json:"error,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
}

// Duration returns how long the run took.
func (r SyncResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed reports whether the run ended in the failed outcome.
func (r SyncResult) Failed() bool {
	return r.Outcome == SyncOutcomeFailed
}

// SweepReport aggregates the per-user results of one scheduled sweep.
type SweepReport struct {
	RunID      string       `json:"run_id"`
	Results    []SyncResult `json:"results"`
	Failures   int          `json:"failures"`
	Err        error        `json:"-"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// FailedUsers lists the ids of users whose run failed.
func (r SweepReport) FailedUsers() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Failed() {
			ids = append(ids, res.UserID)
		}
	}
	return ids
}
