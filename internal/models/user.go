package models

import "time"

// Credential is the OAuth2 token set for one user. It is valid while now < ExpiresAt.
type Credential struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the access token can still be used at the given instant.
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt)
}

// Athlete is the provider's profile of the authenticated user.
type Athlete struct {
	ID             string `json:"id"`
	Username       string `json:"username,omitempty"`
	FirstName      string `json:"firstname"`
	LastName       string `json:"lastname"`
	City           string `json:"city,omitempty"`
	Country        string `json:"country,omitempty"`
	ProfilePicture string `json:"profile,omitempty"`
}

// User is a club member known to the sync subsystem.
type User struct {
	ID             string     `json:"id"`
	StravaID       string     `json:"strava_id"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Username       string     `json:"username,omitempty"`
	City           string     `json:"city,omitempty"`
	Country        string     `json:"country,omitempty"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
