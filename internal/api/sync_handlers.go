package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/runclub/clubsync/internal/auth"
	"github.com/runclub/clubsync/internal/models"
	"github.com/runclub/clubsync/internal/syncer"
)

// SyncHandler handles on-demand sync requests and the run log.
type SyncHandler struct {
	sync   SyncTrigger
	runs   RunStore
	logger *slog.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(sync SyncTrigger, runs RunStore, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		sync:   sync,
		runs:   runs,
		logger: logger,
	}
}

// TriggerSync handles POST /api/activities/sync. The run happens in the
// background; the caller learns the outcome from the run log.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	err := h.sync.Trigger(userID, models.SyncTriggerManual)
	switch {
	case errors.Is(err, syncer.ErrQueueFull), errors.Is(err, syncer.ErrWorkerStopped):
		h.logger.Warn("Sync request rejected", "user_id", userID, "error", err)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "Sync temporarily unavailable")
		return
	case err != nil:
		h.logger.Error("Failed to queue sync", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start sync")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Sync started in background"})
}

// ListRuns handles GET /api/activities/sync/runs
func (h *SyncHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list sync runs", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list sync runs")
		return
	}
	if runs == nil {
		runs = []models.SyncResult{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
