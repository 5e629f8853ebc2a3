package snapshot

import (
	"strings"

	"github.com/argosight/livetrack/pkg/model"
)

// MaxSearchLimit caps search result sizes.
const (
	MaxSearchLimit     = 200
	DefaultSearchLimit = 50
)

// searchableFields enumerates the fields free-text search may match against.
var searchableFields = map[string]func(model.TrackerPoint) string{
	"label":         func(p model.TrackerPoint) string { return p.Label },
	"category":      func(p model.TrackerPoint) string { return string(p.Category) },
	"country":       func(p model.TrackerPoint) string { return p.Country },
	"operator":      func(p model.TrackerPoint) string { return p.Operator },
	"flight_number": func(p model.TrackerPoint) string { return p.FlightNumber },
	"tail_number":   func(p model.TrackerPoint) string { return p.TailNumber },
}

// Search matches query case-insensitively across the requested fields (all
// searchable fields when none are given), optionally restricted to one kind.
// Unknown field names are ignored. The limit is clamped to MaxSearchLimit.
func Search(points []model.TrackerPoint, query string, fields []string, kind model.Kind, limit int) []model.TrackerPoint {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []model.TrackerPoint{}
	}

	extractors := make([]func(model.TrackerPoint) string, 0, len(searchableFields))
	if len(fields) == 0 {
		for _, fn := range searchableFields {
			extractors = append(extractors, fn)
		}
	} else {
		for _, f := range fields {
			if fn, ok := searchableFields[strings.ToLower(strings.TrimSpace(f))]; ok {
				extractors = append(extractors, fn)
			}
		}
	}

	out := make([]model.TrackerPoint, 0, limit)
	for _, p := range points {
		if kind != "" && p.Kind != kind {
			continue
		}
		for _, fn := range extractors {
			if v := fn(p); v != "" && strings.Contains(strings.ToLower(v), q) {
				out = append(out, p)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}
