package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the tables the sync subsystem reads and writes. Every statement is
// idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id               UUID PRIMARY KEY,
	strava_id        TEXT NOT NULL UNIQUE,
	first_name       TEXT NOT NULL DEFAULT '',
	last_name        TEXT NOT NULL DEFAULT '',
	username         TEXT NOT NULL DEFAULT '',
	city             TEXT NOT NULL DEFAULT '',
	country          TEXT NOT NULL DEFAULT '',
	profile_picture  TEXT NOT NULL DEFAULT '',
	access_token     TEXT,
	refresh_token    TEXT,
	token_expires_at TIMESTAMPTZ,
	last_sync_at     TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS activities (
	id                   BIGSERIAL PRIMARY KEY,
	strava_activity_id   TEXT NOT NULL UNIQUE,
	user_id              UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name                 TEXT NOT NULL DEFAULT '',
	type                 TEXT NOT NULL,
	distance             DOUBLE PRECISION NOT NULL DEFAULT 0,
	moving_time          INTEGER NOT NULL DEFAULT 0,
	elapsed_time         INTEGER NOT NULL DEFAULT 0,
	total_elevation_gain DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_date           TIMESTAMPTZ NOT NULL,
	start_date_local     TIMESTAMPTZ NOT NULL,
	timezone             TEXT NOT NULL DEFAULT '',
	average_speed        DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_speed            DOUBLE PRECISION NOT NULL DEFAULT 0,
	average_heartrate    DOUBLE PRECISION,
	max_heartrate        DOUBLE PRECISION,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_activities_user_start ON activities (user_id, start_date DESC);

CREATE TABLE IF NOT EXISTS sync_runs (
	id               UUID PRIMARY KEY,
	user_id          TEXT NOT NULL,
	trigger_source   TEXT NOT NULL,
	state            TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	pages_fetched    INTEGER NOT NULL DEFAULT 0,
	accepted         INTEGER NOT NULL DEFAULT 0,
	rejected         INTEGER NOT NULL DEFAULT 0,
	duplicates       INTEGER NOT NULL DEFAULT 0,
	upserted         INTEGER NOT NULL DEFAULT 0,
	persist_failures INTEGER NOT NULL DEFAULT 0,
	error            TEXT NOT NULL DEFAULT '',
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_user_started ON sync_runs (user_id, started_at DESC);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", classify(err))
	}
	return nil
}
