// Package api serves the HTTP surface of the sync subsystem: provider onboarding,
// the member profile, on-demand syncs and the run log.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/runclub/clubsync/internal/auth"
	"github.com/runclub/clubsync/internal/models"
)

// UserStore reads and writes club members.
type UserStore interface {
	UpsertAthlete(ctx context.Context, athlete models.Athlete, cred models.Credential) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
}

// ActivityStore lists a member's stored activities.
type ActivityStore interface {
	ListActivities(ctx context.Context, userID string, since time.Time) ([]models.Activity, error)
}

// RunStore lists recorded sync runs.
type RunStore interface {
	ListRuns(ctx context.Context, userID string, limit int) ([]models.SyncResult, error)
}

// OAuthFlow is the provider's authorization-code grant.
type OAuthFlow interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (models.Credential, models.Athlete, error)
}

// SyncTrigger queues a background sync.
type SyncTrigger interface {
	Trigger(userID string, trigger models.SyncTrigger) error
}

// Dependencies are the collaborators the routes need.
type Dependencies struct {
	Users       UserStore
	Activities  ActivityStore
	Runs        RunStore
	OAuth       OAuthFlow
	Sync        SyncTrigger
	Auth        auth.Config
	FrontendURL string
	// Ping reports whether the store is reachable; nil means always healthy.
	Ping func(ctx context.Context) error
}

// SetupRoutes configures all API routes
func SetupRoutes(mux *http.ServeMux, deps Dependencies, logger *slog.Logger) {
	authHandler := NewAuthHandler(deps.Users, deps.OAuth, deps.Sync, deps.Auth, deps.FrontendURL, logger)
	syncHandler := NewSyncHandler(deps.Sync, deps.Runs, logger)
	activityHandler := NewActivityHandler(deps.Activities, logger)

	requireAuth := auth.Middleware(deps.Auth)

	mux.HandleFunc("GET /healthz", healthHandler(deps.Ping))

	// Provider onboarding (public)
	mux.HandleFunc("GET /auth/strava", authHandler.Login)
	mux.HandleFunc("GET /auth/strava/callback", authHandler.Callback)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)

	mux.Handle("GET /api/auth/profile", requireAuth(http.HandlerFunc(authHandler.Profile)))
	mux.Handle("GET /api/activities", requireAuth(http.HandlerFunc(activityHandler.ListActivities)))
	mux.Handle("POST /api/activities/sync", requireAuth(http.HandlerFunc(syncHandler.TriggerSync)))
	mux.Handle("GET /api/activities/sync/runs", requireAuth(http.HandlerFunc(syncHandler.ListRuns)))
}

// CORS allows the frontend origin to call the API with a bearer token.
func CORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
