package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/runclub/clubsync/internal/models"
)

// UserRepository stores club members and their provider credentials.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, strava_id, first_name, last_name, username, city, country, profile_picture, last_sync_at, created_at, updated_at`

// UpsertAthlete creates or updates the user keyed by the provider athlete id and
// stores cred for it.
func (r *UserRepository) UpsertAthlete(ctx context.Context, athlete models.Athlete, cred models.Credential) (models.User, error) {
	query := `
		INSERT INTO users (id, strava_id, first_name, last_name, username, city, country, profile_picture,
			access_token, refresh_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (strava_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			username = EXCLUDED.username,
			city = EXCLUDED.city,
			country = EXCLUDED.country,
			profile_picture = EXCLUDED.profile_picture,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at = NOW()
		RETURNING ` + userColumns

	row := r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		athlete.ID,
		athlete.FirstName,
		athlete.LastName,
		athlete.Username,
		athlete.City,
		athlete.Country,
		athlete.ProfilePicture,
		cred.AccessToken,
		cred.RefreshToken,
		cred.ExpiresAt,
	)

	user, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to upsert athlete %s: %w", athlete.ID, classify(err))
	}
	return user, nil
}

// GetUser retrieves a user by id.
func (r *UserRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	if uuid.Validate(id) != nil {
		return models.User{}, models.ErrUserNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", classify(err))
	}
	return user, nil
}

// GetCredential returns nil when the user is unknown or never stored tokens.
func (r *UserRepository) GetCredential(ctx context.Context, userID string) (*models.Credential, error) {
	if uuid.Validate(userID) != nil {
		return nil, nil
	}

	var (
		access, refresh sql.NullString
		expiresAt       sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, token_expires_at FROM users WHERE id = $1`,
		userID,
	).Scan(&access, &refresh, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", classify(err))
	}
	if !refresh.Valid || refresh.String == "" {
		return nil, nil
	}

	return &models.Credential{
		AccessToken:  access.String,
		RefreshToken: refresh.String,
		ExpiresAt:    expiresAt.Time,
	}, nil
}

// SetCredential replaces all three token fields in one statement.
func (r *UserRepository) SetCredential(ctx context.Context, userID string, cred models.Credential) error {
	return r.updateOne(ctx, "set credential", `
		UPDATE users
		SET access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = NOW()
		WHERE id = $1
	`, userID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt)
}

// SetLastSyncAt records the end of the user's last complete sync.
func (r *UserRepository) SetLastSyncAt(ctx context.Context, userID string, ts time.Time) error {
	return r.updateOne(ctx, "set last sync time", `
		UPDATE users SET last_sync_at = $2, updated_at = NOW() WHERE id = $1
	`, userID, ts)
}

func (r *UserRepository) updateOne(ctx context.Context, op, query string, userID string, args ...interface{}) error {
	if uuid.Validate(userID) != nil {
		return models.ErrUserNotFound
	}

	result, err := r.db.ExecContext(ctx, query, append([]interface{}{userID}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, classify(err))
	}
	if rows == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// ListUserIDs returns every user id, oldest first.
func (r *UserRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", classify(err))
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(err)
		}
		ids = append(ids, id)
	}

	return ids, classify(rows.Err())
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		user       models.User
		lastSyncAt sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.StravaID,
		&user.FirstName,
		&user.LastName,
		&user.Username,
		&user.City,
		&user.Country,
		&user.ProfilePicture,
		&lastSyncAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	if lastSyncAt.Valid {
		ts := lastSyncAt.Time
		user.LastSyncAt = &ts
	}
	return user, nil
}
