package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/runclub/clubsync/internal/auth"
	"github.com/runclub/clubsync/internal/models"
)

const stateCookie = "clubsync_oauth_state"

// AuthHandler runs provider onboarding and serves the member profile.
type AuthHandler struct {
	users       UserStore
	oauth       OAuthFlow
	sync        SyncTrigger
	config      auth.Config
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(users UserStore, oauth OAuthFlow, sync SyncTrigger, config auth.Config, frontendURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:       users,
		oauth:       oauth,
		sync:        sync,
		config:      config,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// ProfileResponse is the member profile returned to the frontend.
type ProfileResponse struct {
	ID             string     `json:"id"`
	StravaID       string     `json:"stravaId"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Username       string     `json:"username,omitempty"`
	City           string     `json:"city,omitempty"`
	Country        string     `json:"country,omitempty"`
	ProfilePicture string     `json:"profilePicture,omitempty"`
	LastSyncAt     *time.Time `json:"lastSyncAt"`
}

// Login handles GET /auth/strava
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/strava",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /auth/strava/callback. Any failure sends the browser
// back to the frontend root; success lands on the frontend with a session token.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if reason := query.Get("error"); reason != "" {
		h.logger.Warn("Provider authorization denied", "reason", reason)
		h.redirectFailure(w, r)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != query.Get("state") {
		h.logger.Warn("OAuth state mismatch", "ip", r.RemoteAddr)
		h.redirectFailure(w, r)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth/strava", MaxAge: -1})

	code := query.Get("code")
	if code == "" {
		h.redirectFailure(w, r)
		return
	}

	cred, athlete, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("Failed to exchange authorization code", "error", err)
		h.redirectFailure(w, r)
		return
	}

	user, err := h.users.UpsertAthlete(r.Context(), athlete, cred)
	if err != nil {
		h.logger.Error("Failed to store athlete", "strava_id", athlete.ID, "error", err)
		h.redirectFailure(w, r)
		return
	}

	// Onboarding never waits on the first sync.
	if err := h.sync.Trigger(user.ID, models.SyncTriggerOnboarding); err != nil {
		h.logger.Warn("Failed to queue onboarding sync", "user_id", user.ID, "error", err)
	}

	token, err := auth.GenerateToken(user.ID, h.config.JWTSecret, h.config.TokenDuration)
	if err != nil {
		h.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		h.redirectFailure(w, r)
		return
	}

	h.logger.Info("Member signed in", "user_id", user.ID, "strava_id", user.StravaID)
	http.Redirect(w, r, h.frontendURL+"/auth/callback?token="+url.QueryEscape(token), http.StatusFound)
}

// Logout handles POST /auth/logout. Sessions are stateless bearer tokens, so
// the client discards its token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Profile handles GET /api/auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if errors.Is(err, models.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load profile", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get profile")
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		ID:             user.ID,
		StravaID:       user.StravaID,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Username:       user.Username,
		City:           user.City,
		Country:        user.Country,
		ProfilePicture: user.ProfilePicture,
		LastSyncAt:     user.LastSyncAt,
	})
}

func (h *AuthHandler) redirectFailure(w http.ResponseWriter, r *http.Request) {
	target := h.frontendURL
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}
