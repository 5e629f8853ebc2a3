// Package model defines the data structures shared across the live tracker subsystem
package model

import "time"

// Kind is the top-level entity category
type Kind string

const (
	KindFlight Kind = "flight"
	KindShip   Kind = "ship"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindFlight || k == KindShip
}

// Category is the provider-classified sub-type of an entity
type Category string

const (
	CategoryMilitary   Category = "military"
	CategoryGovernment Category = "government"
	CategoryVIP        Category = "vip"
	CategoryCargo      Category = "cargo"
	CategoryPrivate    Category = "private"
	CategoryCommercial Category = "commercial"
	CategoryTanker     Category = "tanker"
	CategoryPassenger  Category = "passenger"
	CategoryFishing    Category = "fishing"
	CategoryPleasure   Category = "pleasure"
	CategoryUnknown    Category = "unknown"
)

// TrackerPoint is one entity's current observation. Points are replaced
// wholesale on each successful provider fetch for their kind.
type TrackerPoint struct {
	Kind     Kind     `json:"kind"`
	Category Category `json:"category"`
	Label    string   `json:"label"`

	// Flight-specific identity fields
	Operator     string `json:"operator,omitempty"`
	FlightNumber string `json:"flight_number,omitempty"`
	TailNumber   string `json:"tail_number,omitempty"`

	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	AltitudeFt *float64 `json:"altitude_ft,omitempty"`
	SpeedKt    *float64 `json:"speed_kt,omitempty"`
	Heading    *float64 `json:"heading,omitempty"`

	Country  string `json:"country,omitempty"`
	Industry string `json:"industry,omitempty"`

	ObservedAt time.Time `json:"observed_at"`

	// Metrics are derived from history at snapshot time; nil until then.
	Metrics *DerivedMetrics `json:"metrics,omitempty"`
}

// DerivedMetrics are computed per point from the entity's windowed history.
type DerivedMetrics struct {
	SpeedHeat float64 `json:"speed_heat"`
	// SpeedVolatility is the population standard deviation of windowed speed
	// samples; nil when fewer than the minimum sample count are retained.
	SpeedVolatility *float64 `json:"speed_volatility"`
	VolHeat         float64  `json:"vol_heat"`
}

// Identity derives the stable correlation key for this point.
func (p TrackerPoint) Identity() EntityIdentity {
	return NewEntityIdentity(p.Kind, p.Label, p.Country, string(p.Category))
}

// HistorySample is one retained observation in an entity's history series.
// Position is kept alongside speed so the analysis path can replay routes.
type HistorySample struct {
	Timestamp  time.Time `json:"timestamp"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeedKt    float64   `json:"speed_kt"`
	AltitudeFt *float64  `json:"altitude_ft,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
}

// Mode selects which kinds a snapshot covers.
type Mode string

const (
	ModeAll     Mode = "all"
	ModeFlights Mode = "flights"
	ModeShips   Mode = "ships"
)

// ParseMode maps a query value to a Mode, defaulting to all.
func ParseMode(s string) Mode {
	switch s {
	case "flights", "flight":
		return ModeFlights
	case "ships", "ship":
		return ModeShips
	default:
		return ModeAll
	}
}

// Snapshot is a point-in-time view of all currently cached entities.
type Snapshot struct {
	Mode        Mode           `json:"mode"`
	Count       int            `json:"count"`
	RefreshedAt time.Time      `json:"refreshed_at"`
	Warnings    []string       `json:"warnings"`
	Points      []TrackerPoint `json:"points"`
}
