package model

import "time"

// Geofence is a circular region of interest supplied by the caller per
// analysis request. The core never persists geofences.
type Geofence struct {
	ID       string  `json:"id"`
	Label    string  `json:"label,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusKm float64 `json:"radius_km"`
}

// GeofenceEventType distinguishes entry from exit transitions.
type GeofenceEventType string

const (
	GeofenceEnter GeofenceEventType = "enter"
	GeofenceExit  GeofenceEventType = "exit"
)

// GeofenceEvent is one boundary crossing observed while walking an entity's
// replay in chronological order.
type GeofenceEvent struct {
	FenceID    string            `json:"fence_id"`
	FenceLabel string            `json:"fence_label,omitempty"`
	Type       GeofenceEventType `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
}

// LoiterResult reports whether the entity remained within a bounded radius
// for at least the requested duration.
type LoiterResult struct {
	Detected        bool    `json:"detected"`
	CenterLat       float64 `json:"center_lat,omitempty"`
	CenterLon       float64 `json:"center_lon,omitempty"`
	DurationMinutes float64 `json:"duration_minutes,omitempty"`
}

// AnalysisResult is the outcome of one analysis call. An unknown or stale
// entity yields an empty result, never an error.
type AnalysisResult struct {
	TrackerID string          `json:"tracker_id"`
	WindowSec int             `json:"window_sec"`
	Loiter    LoiterResult    `json:"loiter"`
	Events    []GeofenceEvent `json:"events"`
	Replay    []HistorySample `json:"replay"`
}
