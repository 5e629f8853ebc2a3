package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/argosight/livetrack/pkg/analysis"
	"github.com/argosight/livetrack/pkg/model"
	"github.com/argosight/livetrack/pkg/snapshot"
	"github.com/argosight/livetrack/pkg/store"
)

// TrackerHandler serves the on-demand snapshot, search, history, and
// analysis endpoints.
type TrackerHandler struct {
	store  *store.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewTrackerHandler creates a TrackerHandler backed by the shared store.
func NewTrackerHandler(st *store.Store, logger zerolog.Logger) *TrackerHandler {
	return &TrackerHandler{
		store:  st,
		logger: logger.With().Str("handler", "trackers").Logger(),
		now:    time.Now,
	}
}

// Routes returns the tracker routes.
func (h *TrackerHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListTrackers)
	r.Get("/search", h.SearchTrackers)
	r.Get("/{trackerId}", h.GetTracker)
	r.Get("/{trackerId}/history", h.GetTrackerHistory)
	r.Post("/{trackerId}/analysis", h.AnalyzeTracker)

	return r
}

// SnapshotResponse is the body for GET /api/v1/trackers.
type SnapshotResponse struct {
	Mode          model.Mode           `json:"mode"`
	Count         int                  `json:"count"`
	Total         int                  `json:"total"`
	Offset        int                  `json:"offset"`
	Limit         int                  `json:"limit"`
	RefreshedAt   time.Time            `json:"refreshed_at"`
	Warnings      []string             `json:"warnings"`
	Points        []model.TrackerPoint `json:"points"`
	CorrelationID string               `json:"correlation_id"`
}

// ListTrackers handles GET /api/v1/trackers.
func (h *TrackerHandler) ListTrackers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := GetCorrelationID(ctx)
	q := r.URL.Query()

	filters := snapshot.Filters{
		Category: q.Get("category"),
		Country:  q.Get("country"),
		Operator: q.Get("operator"),
	}
	if bbox := q.Get("bbox"); bbox != "" {
		bounds, err := snapshot.ParseBBox(bbox)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), correlationID)
			return
		}
		filters.BBox = bounds
	}

	offset := intParam(q.Get("offset"), 0)
	limit := intParam(q.Get("limit"), 100)

	snap := h.store.GetSnapshot(ctx, model.ParseMode(q.Get("mode")))
	filtered := snapshot.ApplyFilters(snap.Points, filters)
	page, effectiveOffset := snapshot.Paginate(filtered, offset, limit)

	WriteJSON(w, http.StatusOK, SnapshotResponse{
		Mode:          snap.Mode,
		Count:         len(page),
		Total:         len(filtered),
		Offset:        effectiveOffset,
		Limit:         limit,
		RefreshedAt:   snap.RefreshedAt,
		Warnings:      snap.Warnings,
		Points:        page,
		CorrelationID: correlationID,
	})
}

// SearchResponse is the body for GET /api/v1/trackers/search.
type SearchResponse struct {
	Query         string               `json:"query"`
	Count         int                  `json:"count"`
	Points        []model.TrackerPoint `json:"points"`
	CorrelationID string               `json:"correlation_id"`
}

// SearchTrackers handles GET /api/v1/trackers/search.
func (h *TrackerHandler) SearchTrackers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := GetCorrelationID(ctx)
	q := r.URL.Query()

	query := q.Get("q")
	if strings.TrimSpace(query) == "" {
		WriteError(w, http.StatusBadRequest, "query parameter q is required", correlationID)
		return
	}

	var fields []string
	if raw := q.Get("fields"); raw != "" {
		fields = strings.Split(raw, ",")
	}
	kind := model.Kind(q.Get("kind"))
	if kind != "" && !kind.Valid() {
		WriteError(w, http.StatusBadRequest, "kind must be flight or ship", correlationID)
		return
	}
	limit := intParam(q.Get("limit"), snapshot.DefaultSearchLimit)

	snap := h.store.GetSnapshot(ctx, model.ModeAll)
	matches := snapshot.Search(snap.Points, query, fields, kind, limit)

	WriteJSON(w, http.StatusOK, SearchResponse{
		Query:         query,
		Count:         len(matches),
		Points:        matches,
		CorrelationID: correlationID,
	})
}

// TrackerDetailResponse is the body for GET /api/v1/trackers/{trackerId}.
// Found is false when the id is well-formed but currently stale/unknown.
type TrackerDetailResponse struct {
	TrackerID     string              `json:"tracker_id"`
	Found         bool                `json:"found"`
	Tracker       *model.TrackerPoint `json:"tracker"`
	CorrelationID string              `json:"correlation_id"`
}

// GetTracker handles GET /api/v1/trackers/{trackerId}.
func (h *TrackerHandler) GetTracker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := GetCorrelationID(ctx)

	id, ok := h.trackerIdentity(w, r, correlationID)
	if !ok {
		return
	}

	snap := h.store.GetSnapshot(ctx, model.ModeAll)
	for i := range snap.Points {
		if snap.Points[i].Identity() == id {
			WriteJSON(w, http.StatusOK, TrackerDetailResponse{
				TrackerID:     id.TrackerID(),
				Found:         true,
				Tracker:       &snap.Points[i],
				CorrelationID: correlationID,
			})
			return
		}
	}

	// Stale or unknown entity: well-formed empty payload, not a 404.
	WriteJSON(w, http.StatusOK, TrackerDetailResponse{
		TrackerID:     id.TrackerID(),
		Found:         false,
		CorrelationID: correlationID,
	})
}

// HistoryResponse is the body for GET /api/v1/trackers/{trackerId}/history.
type HistoryResponse struct {
	TrackerID     string                `json:"tracker_id"`
	Count         int                   `json:"count"`
	Samples       []model.HistorySample `json:"samples"`
	CorrelationID string                `json:"correlation_id"`
}

// GetTrackerHistory handles GET /api/v1/trackers/{trackerId}/history.
func (h *TrackerHandler) GetTrackerHistory(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	id, ok := h.trackerIdentity(w, r, correlationID)
	if !ok {
		return
	}

	samples := h.store.History(id)
	if samples == nil {
		samples = []model.HistorySample{}
	}

	WriteJSON(w, http.StatusOK, HistoryResponse{
		TrackerID:     id.TrackerID(),
		Count:         len(samples),
		Samples:       samples,
		CorrelationID: correlationID,
	})
}

// AnalysisRequest is the body for POST /api/v1/trackers/{trackerId}/analysis.
type AnalysisRequest struct {
	WindowSec        int              `json:"window_sec"`
	LoiterRadiusKm   float64          `json:"loiter_radius_km"`
	LoiterMinMinutes float64          `json:"loiter_min_minutes"`
	Geofences        []model.Geofence `json:"geofences"`
}

// AnalysisResponse wraps the analysis result with the correlation id.
type AnalysisResponse struct {
	model.AnalysisResult
	CorrelationID string `json:"correlation_id"`
}

// AnalyzeTracker handles POST /api/v1/trackers/{trackerId}/analysis.
func (h *TrackerHandler) AnalyzeTracker(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	id, ok := h.trackerIdentity(w, r, correlationID)
	if !ok {
		return
	}

	var req AnalysisRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "malformed analysis request body", correlationID)
			return
		}
	}

	samples := h.store.History(id)
	result := analysis.Analyze(samples, h.now().UTC(), analysis.Params{
		WindowSec:        req.WindowSec,
		LoiterRadiusKm:   req.LoiterRadiusKm,
		LoiterMinMinutes: req.LoiterMinMinutes,
		Geofences:        req.Geofences,
	})
	result.TrackerID = id.TrackerID()

	WriteJSON(w, http.StatusOK, AnalysisResponse{
		AnalysisResult: result,
		CorrelationID:  correlationID,
	})
}

// trackerIdentity decodes the opaque path id. A structurally invalid id was
// never valid and yields a 404; stale ids decode fine and are handled by the
// individual endpoints as empty results.
func (h *TrackerHandler) trackerIdentity(w http.ResponseWriter, r *http.Request, correlationID string) (model.EntityIdentity, bool) {
	trackerID := chi.URLParam(r, "trackerId")
	id, err := model.ParseTrackerID(trackerID)
	if err != nil {
		h.logger.Debug().Err(err).Str("tracker_id", trackerID).Msg("Rejected malformed tracker id")
		WriteError(w, http.StatusNotFound, "unknown tracker id", correlationID)
		return model.EntityIdentity{}, false
	}
	return id, true
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	return fallback
}
