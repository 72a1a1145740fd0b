package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential is returned when a user has never connected the provider.
	ErrNoCredential = errors.New("no stored credential")
	// ErrStoreUnavailable marks persistence failures that affect every write, not one record.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUserNotFound is returned when a user id is unknown.
	ErrUserNotFound = errors.New("user not found")
)

// CredentialError means no usable access token could be produced for a user.
// Recovery requires the user to re-authenticate.
type CredentialError struct {
	UserID string
	Err    error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential error for user %s: %v", e.UserID, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// FetchError means a page of the activity feed could not be retrieved.
type FetchError struct {
	Page       int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch page %d: status %d: %v", e.Page, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a store failure for one record or for the run as a whole.
type PersistenceError struct {
	Op         string
	ExternalID string
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ExternalID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Systemic reports whether the failure indicates the store itself is down.
func (e *PersistenceError) Systemic() bool {
	return errors.Is(e.Err, ErrStoreUnavailable)
}
