package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/runclub/clubsync/internal/models"
)

// ActivityRepository stores synced activities keyed by their provider id.
type ActivityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// UpsertActivity inserts the activity or overwrites every mutable field of the row
// with the same provider id. The owning user is never reassigned.
func (r *ActivityRepository) UpsertActivity(ctx context.Context, a models.Activity) error {
	query := `
		INSERT INTO activities (
			strava_activity_id, user_id, name, type, distance, moving_time, elapsed_time,
			total_elevation_gain, start_date, start_date_local, timezone, average_speed,
			max_speed, average_heartrate, max_heartrate
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (strava_activity_id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			distance = EXCLUDED.distance,
			moving_time = EXCLUDED.moving_time,
			elapsed_time = EXCLUDED.elapsed_time,
			total_elevation_gain = EXCLUDED.total_elevation_gain,
			start_date = EXCLUDED.start_date,
			start_date_local = EXCLUDED.start_date_local,
			timezone = EXCLUDED.timezone,
			average_speed = EXCLUDED.average_speed,
			max_speed = EXCLUDED.max_speed,
			average_heartrate = EXCLUDED.average_heartrate,
			max_heartrate = EXCLUDED.max_heartrate,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		a.ExternalID,
		a.UserID,
		a.Name,
		a.Type,
		a.Distance,
		a.MovingTime,
		a.ElapsedTime,
		a.TotalElevationGain,
		a.StartDate,
		a.StartDateLocal,
		a.Timezone,
		a.AverageSpeed,
		a.MaxSpeed,
		nullFloat(a.AverageHeartrate),
		nullFloat(a.MaxHeartrate),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert activity %s: %w", a.ExternalID, classify(err))
	}
	return nil
}

// ListActivities returns the user's activities that started at or after since,
// newest first.
func (r *ActivityRepository) ListActivities(ctx context.Context, userID string, since time.Time) ([]models.Activity, error) {
	query := `
		SELECT strava_activity_id, user_id, name, type, distance, moving_time, elapsed_time,
			total_elevation_gain, start_date, start_date_local, timezone, average_speed,
			max_speed, average_heartrate, max_heartrate, created_at, updated_at
		FROM activities
		WHERE user_id::text = $1 AND start_date >= $2
		ORDER BY start_date DESC, strava_activity_id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", classify(err))
	}
	defer rows.Close()

	activities := []models.Activity{}
	for rows.Next() {
		var (
			a     models.Activity
			avgHR sql.NullFloat64
			maxHR sql.NullFloat64
		)
		err := rows.Scan(
			&a.ExternalID,
			&a.UserID,
			&a.Name,
			&a.Type,
			&a.Distance,
			&a.MovingTime,
			&a.ElapsedTime,
			&a.TotalElevationGain,
			&a.StartDate,
			&a.StartDateLocal,
			&a.Timezone,
			&a.AverageSpeed,
			&a.MaxSpeed,
			&avgHR,
			&maxHR,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, classify(err)
		}
		a.AverageHeartrate = floatPtr(avgHR)
		a.MaxHeartrate = floatPtr(maxHR)
		activities = append(activities, a)
	}

	return activities, classify(rows.Err())
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
