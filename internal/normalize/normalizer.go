// Package normalize turns provider activity records into stored activities.
package normalize

import (
	"github.com/runclub/clubsync/internal/models"
)

// Running disciplines the club tracks.
const (
	TypeRun        = "Run"
	TypeTrailRun   = "TrailRun"
	TypeVirtualRun = "VirtualRun"
)

var allowedTypes = map[string]struct{}{
	TypeRun:        {},
	TypeTrailRun:   {},
	TypeVirtualRun: {},
}

// Allowed reports whether an activity type is one the club tracks.
func Allowed(activityType string) bool {
	_, ok := allowedTypes[activityType]
	return ok
}

// Normalizer filters and maps raw records.
type Normalizer struct{}

// New returns a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Accept maps raw into an Activity owned by userID. The second return value is false
// for records outside the running disciplines or without an id; rejection is not an error.
func (n *Normalizer) Accept(userID string, raw models.RawActivity) (models.Activity, bool) {
	activityType := EffectiveType(raw)
	if !Allowed(activityType) {
		return models.Activity{}, false
	}

	externalID := raw.ID.String()
	if externalID == "" {
		return models.Activity{}, false
	}

	return models.Activity{
		ExternalID:         externalID,
		UserID:             userID,
		Name:               raw.Name,
		Type:               activityType,
		Distance:           raw.Distance,
		MovingTime:         raw.MovingTime,
		ElapsedTime:        raw.ElapsedTime,
		TotalElevationGain: raw.TotalElevationGain,
		StartDate:          raw.StartDate,
		StartDateLocal:     raw.StartDateLocal,
		Timezone:           raw.Timezone,
		AverageSpeed:       raw.AverageSpeed,
		MaxSpeed:           raw.MaxSpeed,
		AverageHeartrate:   copyFloat(raw.AverageHeartrate),
		MaxHeartrate:       copyFloat(raw.MaxHeartrate),
	}, true
}

// EffectiveType prefers the detailed sport_type over the legacy type field.
func EffectiveType(raw models.RawActivity) string {
	if raw.SportType != "" {
		return raw.SportType
	}
	return raw.Type
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// SeenSet records external ids already handled during one sync run. The feed can
// shift between page requests, repeating a record on the next page. Not safe for
// concurrent use; each run owns its own set.
type SeenSet struct {
	ids map[string]struct{}
}

// NewSeenSet creates an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

// Mark records id and reports whether it was new.
func (s *SeenSet) Mark(id string) bool {
	if _, exists := s.ids[id]; exists {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Size returns the number of ids seen.
func (s *SeenSet) Size() int {
	return len(s.ids)
}
