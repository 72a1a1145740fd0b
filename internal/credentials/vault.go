// Package credentials keeps each user's provider access token usable.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/runclub/clubsync/internal/models"
)

// Store persists one credential per user. GetCredential returns nil, nil when the
// user has never connected the provider.
type Store interface {
	GetCredential(ctx context.Context, userID string) (*models.Credential, error)
	SetCredential(ctx context.Context, userID string, cred models.Credential) error
}

// Refresher performs the refresh-token grant against the provider.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.Credential, error)
}

// Vault hands out valid access tokens, refreshing them only when expired.
type Vault struct {
	store     Store
	refresher Refresher
	logger    *slog.Logger
	now       func() time.Time
	group     singleflight.Group
}

// NewVault creates a vault over the given store and provider.
func NewVault(store Store, refresher Refresher, logger *slog.Logger) *Vault {
	return &Vault{
		store:     store,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// EnsureValid returns an access token for userID. A token still inside its validity
// window is returned without contacting the provider. Concurrent callers for the same
// user share one refresh. A failed refresh leaves the stored credential untouched.
func (v *Vault) EnsureValid(ctx context.Context, userID string) (string, error) {
	cred, err := v.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if cred.Valid(v.now()) {
		return cred.AccessToken, nil
	}

	token, err, shared := v.group.Do(userID, func() (interface{}, error) {
		return v.refresh(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	if shared {
		v.logger.Debug("Joined in-flight credential refresh", "user_id", userID)
	}

	return token.(string), nil
}

func (v *Vault) refresh(ctx context.Context, userID string) (string, error) {
	// Another caller may have refreshed between our read and acquiring the flight.
	cred, err := v.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if cred.Valid(v.now()) {
		return cred.AccessToken, nil
	}

	v.logger.Info("Refreshing expired credential",
		"user_id", userID,
		"expired_at", cred.ExpiresAt,
	)

	fresh, err := v.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", &models.CredentialError{UserID: userID, Err: err}
	}

	if err := v.store.SetCredential(ctx, userID, fresh); err != nil {
		// The provider may already have invalidated the old refresh token.
		v.logger.Error("Failed to persist refreshed credential",
			"user_id", userID,
			"rotated", fresh.RefreshToken != cred.RefreshToken,
			"error", err,
		)
		return "", &models.CredentialError{UserID: userID, Err: fmt.Errorf("persist refreshed credential: %w", err)}
	}

	return fresh.AccessToken, nil
}

func (v *Vault) load(ctx context.Context, userID string) (models.Credential, error) {
	cred, err := v.store.GetCredential(ctx, userID)
	if err != nil {
		return models.Credential{}, &models.CredentialError{UserID: userID, Err: fmt.Errorf("load credential: %w", err)}
	}
	if cred == nil {
		return models.Credential{}, &models.CredentialError{UserID: userID, Err: models.ErrNoCredential}
	}
	return *cred, nil
}
