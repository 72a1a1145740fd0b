package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/runclub/clubsync/internal/models"
)

func TestNormalizer_AcceptFiltersByType(t *testing.T) {
	n := New()

	tests := []struct {
		name      string
		typ       string
		sportType string
		want      bool
	}{
		{"run", "Run", "", true},
		{"trail run", "Run", "TrailRun", true},
		{"virtual run", "VirtualRun", "VirtualRun", true},
		{"ride", "Ride", "", false},
		{"mountain bike", "Ride", "MountainBikeRide", false},
		{"sport type wins over legacy type", "Run", "Walk", false},
		{"lowercase is not a known type", "run", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := models.RawActivity{ID: "42", Type: tt.typ, SportType: tt.sportType}
			_, ok := n.Accept("u1", raw)
			if ok != tt.want {
				t.Errorf("Accept(type=%q, sport_type=%q) = %v, want %v", tt.typ, tt.sportType, ok, tt.want)
			}
		})
	}
}

func TestNormalizer_AcceptCopiesFields(t *testing.T) {
	hr := 151.4
	start := time.Date(2025, 10, 1, 6, 0, 0, 0, time.UTC)
	raw := models.RawActivity{
		ID:                 json.Number("12345678901234567890"),
		Name:               "Morning Run",
		Type:               "Run",
		SportType:          "TrailRun",
		Distance:           10234.5,
		MovingTime:         3120,
		ElapsedTime:        3300,
		TotalElevationGain: 212.3,
		StartDate:          start,
		StartDateLocal:     start.Add(2 * time.Hour),
		Timezone:           "(GMT+02:00) Europe/Athens",
		AverageSpeed:       3.28,
		MaxSpeed:           5.1,
		AverageHeartrate:   &hr,
	}

	got, ok := New().Accept("u1", raw)
	if !ok {
		t.Fatal("expected trail run to be accepted")
	}

	if got.ExternalID != "12345678901234567890" {
		t.Errorf("external id = %q, want exact provider id", got.ExternalID)
	}
	if got.UserID != "u1" {
		t.Errorf("user id = %q", got.UserID)
	}
	if got.Type != "TrailRun" {
		t.Errorf("type = %q, want TrailRun", got.Type)
	}
	if got.Distance != 10234.5 || got.MovingTime != 3120 || got.ElapsedTime != 3300 {
		t.Errorf("distance/time not copied as-is: %+v", got)
	}
	if !got.StartDate.Equal(start) || got.Timezone != raw.Timezone {
		t.Errorf("start fields not copied: %+v", got)
	}
	if got.AverageHeartrate == nil || *got.AverageHeartrate != hr {
		t.Errorf("average heartrate = %v, want %v", got.AverageHeartrate, hr)
	}
	if got.MaxHeartrate != nil {
		t.Errorf("max heartrate should stay absent, got %v", *got.MaxHeartrate)
	}

	// The activity must not alias the raw record's optional fields.
	hr = 0
	if *got.AverageHeartrate != 151.4 {
		t.Error("average heartrate aliases the raw record")
	}
}

func TestNormalizer_HeartRateZeroIsNotAbsent(t *testing.T) {
	var raw models.RawActivity
	if err := json.Unmarshal([]byte(`{"id":1,"type":"Run","average_heartrate":0}`), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, ok := New().Accept("u1", raw)
	if !ok {
		t.Fatal("expected run to be accepted")
	}
	if got.AverageHeartrate == nil {
		t.Fatal("explicit zero heartrate was dropped")
	}
	if got.MaxHeartrate != nil {
		t.Error("missing max heartrate should be absent")
	}
}

func TestNormalizer_RejectsMissingID(t *testing.T) {
	if _, ok := New().Accept("u1", models.RawActivity{Type: "Run"}); ok {
		t.Error("record without an id must be rejected")
	}
}

func TestSeenSet_Mark(t *testing.T) {
	seen := NewSeenSet()

	if !seen.Mark("a") {
		t.Error("first mark should report new")
	}
	if seen.Mark("a") {
		t.Error("second mark should report duplicate")
	}
	if !seen.Mark("b") {
		t.Error("different id should report new")
	}
	if seen.Size() != 2 {
		t.Errorf("expected 2 ids, got %d", seen.Size())
	}
}
