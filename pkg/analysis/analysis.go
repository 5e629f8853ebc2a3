// Package analysis derives loiter, geofence-crossing, and route-replay
// results from an entity's retained history. It operates on sample copies
// passed in by the caller and never touches live store state.
package analysis

import (
	"time"

	"github.com/argosight/livetrack/pkg/geo"
	"github.com/argosight/livetrack/pkg/model"
)

// Params configures one analysis call.
type Params struct {
	WindowSec        int              `json:"window_sec"`
	LoiterRadiusKm   float64          `json:"loiter_radius_km"`
	LoiterMinMinutes float64          `json:"loiter_min_minutes"`
	Geofences        []model.Geofence `json:"geofences"`
}

// Defaults applied to zero-valued parameters.
const (
	DefaultWindowSec        = 900
	DefaultLoiterRadiusKm   = 5.0
	DefaultLoiterMinMinutes = 15.0
)

func (p *Params) applyDefaults() {
	if p.WindowSec <= 0 {
		p.WindowSec = DefaultWindowSec
	}
	if p.LoiterRadiusKm <= 0 {
		p.LoiterRadiusKm = DefaultLoiterRadiusKm
	}
	if p.LoiterMinMinutes <= 0 {
		p.LoiterMinMinutes = DefaultLoiterMinMinutes
	}
}

// Analyze runs replay, loiter detection, and geofence-event extraction over
// the identity's samples. An empty sample set yields an empty well-formed
// result: analysis of an unknown or stale entity is not an error.
func Analyze(samples []model.HistorySample, now time.Time, p Params) model.AnalysisResult {
	p.applyDefaults()

	replay := replayWindow(samples, now, time.Duration(p.WindowSec)*time.Second)
	result := model.AnalysisResult{
		WindowSec: p.WindowSec,
		Loiter:    detectLoiter(replay, p.LoiterRadiusKm, p.LoiterMinMinutes),
		Events:    geofenceEvents(replay, p.Geofences),
		Replay:    replay,
	}
	return result
}

// replayWindow returns the samples observed within window of now, preserving
// order.
func replayWindow(samples []model.HistorySample, now time.Time, window time.Duration) []model.HistorySample {
	cutoff := now.Add(-window)
	out := make([]model.HistorySample, 0, len(samples))
	for _, s := range samples {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// detectLoiter reports whether some contiguous sub-window of at least
// minMinutes keeps every position within radiusKm of that sub-window's own
// centroid. The centroid is recomputed per candidate sub-window: a long
// transit whose global centroid happens to sit near the route must not be
// classified as loitering. The longest qualifying sub-window wins.
func detectLoiter(replay []model.HistorySample, radiusKm, minMinutes float64) model.LoiterResult {
	minDur := time.Duration(minMinutes * float64(time.Minute))
	best := model.LoiterResult{}

	for i := 0; i < len(replay); i++ {
		for j := i + 1; j < len(replay); j++ {
			dur := replay[j].Timestamp.Sub(replay[i].Timestamp)
			if dur < minDur {
				continue
			}
			lat, lon, ok := subWindowCentroid(replay[i : j+1])
			if !ok {
				continue
			}
			if !allWithin(replay[i:j+1], lat, lon, radiusKm) {
				continue
			}
			minutes := dur.Minutes()
			if !best.Detected || minutes > best.DurationMinutes {
				best = model.LoiterResult{
					Detected:        true,
					CenterLat:       lat,
					CenterLon:       lon,
					DurationMinutes: minutes,
				}
			}
		}
	}
	return best
}

func subWindowCentroid(window []model.HistorySample) (float64, float64, bool) {
	lats := make([]float64, len(window))
	lons := make([]float64, len(window))
	for i, s := range window {
		lats[i] = s.Lat
		lons[i] = s.Lon
	}
	return geo.Centroid(lats, lons)
}

func allWithin(window []model.HistorySample, lat, lon, radiusKm float64) bool {
	for _, s := range window {
		if geo.DistanceKm(s.Lat, s.Lon, lat, lon) > radiusKm {
			return false
		}
	}
	return true
}

// geofenceEvents walks the replay in order and emits enter/exit events on
// radius transitions, per fence. The radius test uses great-circle distance.
func geofenceEvents(replay []model.HistorySample, fences []model.Geofence) []model.GeofenceEvent {
	events := make([]model.GeofenceEvent, 0)
	for _, fence := range fences {
		if fence.RadiusKm <= 0 {
			continue
		}
		inside := false
		for i, s := range replay {
			within := geo.DistanceKm(s.Lat, s.Lon, fence.Lat, fence.Lon) <= fence.RadiusKm
			if i == 0 {
				inside = within
				continue
			}
			if within && !inside {
				events = append(events, newEvent(fence, model.GeofenceEnter, s))
			} else if !within && inside {
				events = append(events, newEvent(fence, model.GeofenceExit, s))
			}
			inside = within
		}
	}
	return events
}

func newEvent(fence model.Geofence, typ model.GeofenceEventType, s model.HistorySample) model.GeofenceEvent {
	return model.GeofenceEvent{
		FenceID:    fence.ID,
		FenceLabel: fence.Label,
		Type:       typ,
		Timestamp:  s.Timestamp,
		Lat:        s.Lat,
		Lon:        s.Lon,
	}
}
