package models

import (
	"encoding/json"
	"time"
)

// RawActivity is one record of the provider's activity listing as it arrives on the
// wire. It only lives while its page is being processed.
type RawActivity struct {
	ID                 json.Number `json:"id"`
	Name               string      `json:"name"`
	Type               string      `json:"type"`
	SportType          string      `json:"sport_type"`
	Distance           float64     `json:"distance"`
	MovingTime         int         `json:"moving_time"`
	ElapsedTime        int         `json:"elapsed_time"`
	TotalElevationGain float64     `json:"total_elevation_gain"`
	StartDate          time.Time   `json:"start_date"`
	StartDateLocal     time.Time   `json:"start_date_local"`
	Timezone           string      `json:"timezone"`
	AverageSpeed       float64     `json:"average_speed"`
	MaxSpeed           float64     `json:"max_speed"`
	AverageHeartrate   *float64    `json:"average_heartrate,omitempty"`
	MaxHeartrate       *float64    `json:"max_heartrate,omitempty"`
}

// Activity is the stored representation of a provider activity.
// ExternalID is unique across all users and all runs and is the upsert key.
// Distances are meters, durations seconds, speeds meters per second.
type Activity struct {
	ExternalID         string    `json:"external_id"`
	UserID             string    `json:"user_id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	ElapsedTime        int       `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone,omitempty"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
	AverageHeartrate   *float64  `json:"average_heartrate,omitempty"`
	MaxHeartrate       *float64  `json:"max_heartrate,omitempty"`
	CreatedAt          time.Time `json:"created_at,omitempty"`
	UpdatedAt          time.Time `json:"updated_at,omitempty"`
}
