package api

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/runclub/clubsync/internal/auth"
	"github.com/runclub/clubsync/internal/models"
)

// Period names accepted by the activities listing.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// ActivityHandler serves a member's stored activities.
type ActivityHandler struct {
	activities ActivityStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(activities ActivityStore, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{
		activities: activities,
		logger:     logger,
		now:        time.Now,
	}
}

// ActivityResponse is one activity as the frontend renders it.
type ActivityResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	Distance           float64   `json:"distance"`
	DistanceKm         string    `json:"distanceKm"`
	MovingTime         int       `json:"movingTime"`
	ElapsedTime        int       `json:"elapsedTime"`
	TotalElevationGain float64   `json:"totalElevationGain"`
	StartDate          time.Time `json:"startDate"`
	StartDateLocal     time.Time `json:"startDateLocal"`
	AverageSpeed       float64   `json:"averageSpeed"`
	MaxSpeed           float64   `json:"maxSpeed"`
	AverageHeartrate   *float64  `json:"averageHeartrate"`
	MaxHeartrate       *float64  `json:"maxHeartrate"`
	Pace               *string   `json:"pace"`
}

// ActivityStats aggregates the listed activities.
type ActivityStats struct {
	TotalDistance   float64 `json:"totalDistance"`
	TotalDistanceKm string  `json:"totalDistanceKm"`
	TotalTime       int     `json:"totalTime"`
	TotalActivities int     `json:"totalActivities"`
	AverageDistance string  `json:"averageDistance"`
}

// ListActivities handles GET /api/activities?period=day|week|month
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = PeriodMonth
	}
	since, ok := periodStart(period, h.now())
	if !ok {
		writeError(w, http.StatusBadRequest, "period must be one of day, week, month")
		return
	}

	activities, err := h.activities.ListActivities(r.Context(), userID, since)
	if err != nil {
		h.logger.Error("Failed to list activities", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch activities")
		return
	}

	out := make([]ActivityResponse, 0, len(activities))
	var stats ActivityStats
	for _, a := range activities {
		out = append(out, toActivityResponse(a))
		stats.TotalDistance += a.Distance
		stats.TotalTime += a.MovingTime
		stats.TotalActivities++
	}
	stats.TotalDistanceKm = kilometers(stats.TotalDistance)
	stats.AverageDistance = "0.00"
	if stats.TotalActivities > 0 {
		stats.AverageDistance = kilometers(stats.TotalDistance / float64(stats.TotalActivities))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activities": out,
		"stats":      stats,
	})
}

func toActivityResponse(a models.Activity) ActivityResponse {
	resp := ActivityResponse{
		ID:                 a.ExternalID,
		Name:               a.Name,
		Type:               a.Type,
		Distance:           a.Distance,
		DistanceKm:         kilometers(a.Distance),
		MovingTime:         a.MovingTime,
		ElapsedTime:        a.ElapsedTime,
		TotalElevationGain: a.TotalElevationGain,
		StartDate:          a.StartDate,
		StartDateLocal:     a.StartDateLocal,
		AverageSpeed:       a.AverageSpeed,
		MaxSpeed:           a.MaxSpeed,
		AverageHeartrate:   a.AverageHeartrate,
		MaxHeartrate:       a.MaxHeartrate,
	}
	if a.AverageSpeed > 0 {
		pace := formatPace(a.AverageSpeed)
		resp.Pace = &pace
	}
	return resp
}

// periodStart returns the first instant of the current day, week (starting
// Sunday) or month in now's location.
func periodStart(period string, now time.Time) (time.Time, bool) {
	y, m, d := now.Date()
	loc := now.Location()
	switch period {
	case PeriodDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	case PeriodWeek:
		return time.Date(y, m, d-int(now.Weekday()), 0, 0, 0, 0, loc), true
	case PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), true
	default:
		return time.Time{}, false
	}
}

func kilometers(meters float64) string {
	return fmt.Sprintf("%.2f", meters/1000)
}

// formatPace renders a speed in m/s as minutes per kilometer, e.g. "5:30".
func formatPace(speed float64) string {
	secondsPerKm := 1000 / speed
	minutes := math.Floor(secondsPerKm / 60)
	seconds := math.Floor(secondsPerKm - minutes*60)
	return fmt.Sprintf("%d:%02d", int(minutes), int(seconds))
}
