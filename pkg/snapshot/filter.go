// Package snapshot provides pure, stateless transformations over tracker
// snapshots: filtering, free-text search, and pagination. Nothing here ever
// re-triggers a refresh or touches live store internals.
package snapshot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/argosight/livetrack/pkg/model"
)

// ValidationError marks malformed caller input. It is the only snapshot-path
// failure surfaced to the caller as a request error rather than a warning.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Bounds is a geographic bounding box with min <= max on both axes.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether the point falls within the closed rectangle.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// ParseBBox parses "minLat,minLon,maxLat,maxLon". Malformed or out-of-range
// input yields a ValidationError, never a silent empty result.
func ParseBBox(s string) (*Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, &ValidationError{Field: "bbox", Reason: "expected minLat,minLon,maxLat,maxLon"}
	}
	vals := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, &ValidationError{Field: "bbox", Reason: fmt.Sprintf("component %d is not a number", i+1)}
		}
		vals[i] = v
	}
	b := Bounds{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if b.MinLat < -90 || b.MaxLat > 90 {
		return nil, &ValidationError{Field: "bbox", Reason: "latitude out of range [-90,90]"}
	}
	if b.MinLon < -180 || b.MaxLon > 180 {
		return nil, &ValidationError{Field: "bbox", Reason: "longitude out of range [-180,180]"}
	}
	if b.MinLat > b.MaxLat {
		return nil, &ValidationError{Field: "bbox", Reason: "min_lat greater than max_lat"}
	}
	if b.MinLon > b.MaxLon {
		return nil, &ValidationError{Field: "bbox", Reason: "min_lon greater than max_lon"}
	}
	return &b, nil
}

// Filters selects points by category, country, operator, and bounding box.
// Empty fields match everything.
type Filters struct {
	Category string
	Country  string
	Operator string
	BBox     *Bounds
}

// ApplyCategoryFilter keeps only points of the given category.
func ApplyCategoryFilter(points []model.TrackerPoint, category string) []model.TrackerPoint {
	return ApplyFilters(points, Filters{Category: category})
}

// ApplyFilters applies all configured filters.
func ApplyFilters(points []model.TrackerPoint, f Filters) []model.TrackerPoint {
	out := make([]model.TrackerPoint, 0, len(points))
	for _, p := range points {
		if f.Category != "" && !strings.EqualFold(string(p.Category), f.Category) {
			continue
		}
		if f.Country != "" && !strings.EqualFold(p.Country, f.Country) {
			continue
		}
		if f.Operator != "" && !strings.EqualFold(p.Operator, f.Operator) {
			continue
		}
		if f.BBox != nil && !f.BBox.Contains(p.Lat, p.Lon) {
			continue
		}
		out = append(out, p)
	}
	return out
}
