package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/argosight/livetrack/pkg/model"
	"github.com/argosight/livetrack/pkg/store"
)

// StatsHandler serves operational statistics about the tracker cache and
// stream clients, for dashboards that want JSON rather than the Prometheus
// exposition format.
type StatsHandler struct {
	store   *store.Store
	streams *StreamHandler
	logger  zerolog.Logger
	started time.Time
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(st *store.Store, streams *StreamHandler, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		store:   st,
		streams: streams,
		logger:  logger.With().Str("handler", "stats").Logger(),
		started: time.Now(),
	}
}

// Routes returns the stats routes
func (h *StatsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetStats)

	return r
}

// StatsResponse summarizes the gateway's current operational state.
type StatsResponse struct {
	TrackedEntities int       `json:"tracked_entities"`
	FlightCount     int       `json:"flight_count"`
	ShipCount       int       `json:"ship_count"`
	StreamClients   int       `json:"stream_clients"`
	LastRefresh     time.Time `json:"last_refresh"`
	RefreshAgeSec   float64   `json:"refresh_age_sec"`
	UptimeSec       float64   `json:"uptime_sec"`
	CorrelationID   string    `json:"correlation_id"`
}

// GetStats handles GET /api/v1/stats.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	snap := h.store.GetSnapshot(r.Context(), model.ModeAll)
	flightCount := 0
	shipCount := 0
	for _, p := range snap.Points {
		switch p.Kind {
		case model.KindFlight:
			flightCount++
		case model.KindShip:
			shipCount++
		}
	}

	lastRefresh := h.store.LastRefresh()
	refreshAge := float64(0)
	if !lastRefresh.IsZero() {
		refreshAge = time.Since(lastRefresh).Seconds()
	}

	WriteJSON(w, http.StatusOK, StatsResponse{
		TrackedEntities: h.store.TrackedEntities(),
		FlightCount:     flightCount,
		ShipCount:       shipCount,
		StreamClients:   h.streams.ClientCount(),
		LastRefresh:     lastRefresh,
		RefreshAgeSec:   refreshAge,
		UptimeSec:       time.Since(h.started).Seconds(),
		CorrelationID:   correlationID,
	})
}
