// Package strava talks to the fitness provider: the OAuth2 token endpoint and the
// paginated athlete activity listing.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/runclub/clubsync/internal/models"
)

// DefaultScopes are requested during onboarding. The provider expects them comma separated.
const DefaultScopes = "read,activity:read_all,profile:read_all"

// OAuthConfig holds the registered application settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// OAuthClient performs the authorization-code and refresh-token grants.
type OAuthClient struct {
	conf       *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
}

// NewOAuthClient builds a client for the provider token endpoint.
func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OAuthClient{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{DefaultScopes},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		timeout:    cfg.Timeout,
	}
}

// AuthCodeURL returns the provider consent page URL carrying state.
func (c *OAuthClient) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

// Exchange trades an authorization code for a credential and the athlete profile
// returned alongside it.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (models.Credential, models.Athlete, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	tok, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return models.Credential{}, models.Athlete{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	cred, err := credentialFromToken(tok)
	if err != nil {
		return models.Credential{}, models.Athlete{}, err
	}

	athlete, err := athleteFromToken(tok)
	if err != nil {
		return models.Credential{}, models.Athlete{}, err
	}

	return cred, athlete, nil
}

// Refresh performs the refresh-token grant. The provider may rotate the refresh
// token; when it does not return one the old token stays in use.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (models.Credential, error) {
	if refreshToken == "" {
		return models.Credential{}, errors.New("refresh token is empty")
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	// An empty access token forces the token source to hit the token endpoint.
	tok, err := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return models.Credential{}, fmt.Errorf("refresh access token: %w", err)
	}

	cred, err := credentialFromToken(tok)
	if err != nil {
		return models.Credential{}, err
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}

	return cred, nil
}

func (c *OAuthClient) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// credentialFromToken prefers the provider's absolute expires_at over the expiry
// derived from expires_in.
func credentialFromToken(tok *oauth2.Token) (models.Credential, error) {
	if tok == nil || tok.AccessToken == "" {
		return models.Credential{}, errors.New("token response did not include an access token")
	}

	expiresAt := tok.Expiry
	if secs, ok := int64Value(tok.Extra("expires_at")); ok && secs > 0 {
		expiresAt = time.Unix(secs, 0).UTC()
	}
	if expiresAt.IsZero() {
		return models.Credential{}, errors.New("token response did not include an expiry")
	}

	return models.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func athleteFromToken(tok *oauth2.Token) (models.Athlete, error) {
	raw, ok := tok.Extra("athlete").(map[string]interface{})
	if !ok {
		return models.Athlete{}, errors.New("token response did not include the athlete profile")
	}

	id, ok := int64Value(raw["id"])
	if !ok || id <= 0 {
		return models.Athlete{}, errors.New("athlete profile has no id")
	}

	athlete := models.Athlete{
		ID:             strconv.FormatInt(id, 10),
		Username:       stringValue(raw["username"]),
		FirstName:      stringValue(raw["firstname"]),
		LastName:       stringValue(raw["lastname"]),
		City:           stringValue(raw["city"]),
		Country:        stringValue(raw["country"]),
		ProfilePicture: stringValue(raw["profile"]),
	}
	if athlete.ProfilePicture == "" {
		athlete.ProfilePicture = stringValue(raw["profile_medium"])
	}

	return athlete, nil
}

func int64Value(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
