// Package store owns the process-wide tracker cache: the latest fetch per
// kind, the per-entity bounded history, and the refresh gate. One Store is
// constructed per process and passed by handle to every consumer.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/argosight/livetrack/pkg/model"
	"github.com/argosight/livetrack/pkg/provider"
)

// Defaults for the refresh gate and history retention.
const (
	DefaultMinRefreshInterval = 20 * time.Second
	DefaultHistoryWindow      = 900 * time.Second
	DefaultFetchLimit         = 500
)

// Kind-specific heat caps. Flights and ships have incompatible speed
// distributions, so each kind normalizes against its own cap.
const (
	flightSpeedCapKt = 650.0
	shipSpeedCapKt   = 40.0
	flightVolCapKt   = 80.0
	shipVolCapKt     = 6.0
)

// RefreshStats summarizes one completed provider round for hooks/metrics.
type RefreshStats struct {
	FlightCount int
	ShipCount   int
	Warnings    []string
	Forced      bool
	RefreshedAt time.Time
}

// RefreshHook is invoked after every completed provider round, outside the
// store's lock.
type RefreshHook func(RefreshStats)

// Options configures a Store.
type Options struct {
	MinRefreshInterval time.Duration
	HistoryWindow      time.Duration
	FetchLimit         int
	Logger             zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is the shared tracker cache. All mutation of the cache, history, and
// refresh timestamp happens under mu as one atomic unit; readers always get
// the last good cache and never block on an in-flight refresh.
type Store struct {
	flightAdapter provider.Adapter
	shipAdapter   provider.Adapter

	minInterval time.Duration
	window      time.Duration
	fetchLimit  int
	logger      zerolog.Logger
	now         func() time.Time

	// refreshMu serializes provider rounds; TryLock lets concurrent callers
	// bypass an in-flight refresh.
	refreshMu sync.Mutex

	mu          sync.RWMutex
	flights     []model.TrackerPoint
	ships       []model.TrackerPoint
	warnings    []string
	lastRefresh time.Time
	history     map[string]*series
	lastSeen    map[string]time.Time

	hookMu sync.Mutex
	hook   RefreshHook
}

// New creates a Store wired to the two provider adapters.
func New(flights, ships provider.Adapter, opts Options) *Store {
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = DefaultMinRefreshInterval
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = DefaultFetchLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		flightAdapter: flights,
		shipAdapter:   ships,
		minInterval:   opts.MinRefreshInterval,
		window:        opts.HistoryWindow,
		fetchLimit:    opts.FetchLimit,
		logger:        opts.Logger.With().Str("component", "tracker_store").Logger(),
		now:           opts.Now,
		history:       make(map[string]*series),
		lastSeen:      make(map[string]time.Time),
	}
}

// SetRefreshHook registers the callback invoked after each provider round.
func (s *Store) SetRefreshHook(hook RefreshHook) {
	s.hookMu.Lock()
	s.hook = hook
	s.hookMu.Unlock()
}

// Refresh performs a provider round unless gated. When not forced and the
// minimum interval has not elapsed, or another refresh is already in flight,
// the existing cache is left untouched and no provider call is made.
func (s *Store) Refresh(ctx context.Context, force bool) {
	if !force && !s.intervalElapsed() {
		return
	}
	if !s.refreshMu.TryLock() {
		// another refresh in flight; serve the last good cache
		return
	}
	defer s.refreshMu.Unlock()

	// re-check after acquiring: a round may have completed while waiting
	if !force && !s.intervalElapsed() {
		return
	}

	var flightRes, shipRes provider.FetchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		flightRes = s.flightAdapter.Fetch(gctx, s.fetchLimit)
		return nil
	})
	g.Go(func() error {
		shipRes = s.shipAdapter.Fetch(gctx, s.fetchLimit)
		return nil
	})
	_ = g.Wait()

	now := s.now().UTC()
	warnings := make([]string, 0, len(flightRes.Warnings)+len(shipRes.Warnings))
	warnings = append(warnings, flightRes.Warnings...)
	warnings = append(warnings, shipRes.Warnings...)

	s.mu.Lock()
	flights := flightRes.Points
	if len(flights) == 0 && len(s.flights) > 0 {
		flights = s.flights
		warnings = append(warnings, "flight provider returned empty; showing cached data")
	}
	ships := shipRes.Points
	if len(ships) == 0 && len(s.ships) > 0 {
		ships = s.ships
		warnings = append(warnings, "shipping provider returned empty; showing cached data")
	}

	s.updateHistoryLocked(flights, now)
	s.updateHistoryLocked(ships, now)
	s.pruneHistoryLocked(now)

	s.flights = flights
	s.ships = ships
	s.warnings = warnings
	s.lastRefresh = now
	stats := RefreshStats{
		FlightCount: len(flights),
		ShipCount:   len(ships),
		Warnings:    warnings,
		Forced:      force,
		RefreshedAt: now,
	}
	s.mu.Unlock()

	s.logger.Debug().
		Int("flights", stats.FlightCount).
		Int("ships", stats.ShipCount).
		Int("warnings", len(stats.Warnings)).
		Bool("forced", force).
		Msg("Refreshed tracker cache")

	s.hookMu.Lock()
	hook := s.hook
	s.hookMu.Unlock()
	if hook != nil {
		hook(stats)
	}
}

func (s *Store) intervalElapsed() bool {
	s.mu.RLock()
	last := s.lastRefresh
	s.mu.RUnlock()
	return last.IsZero() || s.now().Sub(last) >= s.minInterval
}

// updateHistoryLocked appends (timestamp, position, speed) samples for every
// point reporting a speed. Caller holds mu.
func (s *Store) updateHistoryLocked(points []model.TrackerPoint, now time.Time) {
	cutoff := now.Add(-s.window)
	for _, p := range points {
		key := p.Identity().Key()
		s.lastSeen[key] = now
		if p.SpeedKt == nil {
			continue
		}
		ser := s.history[key]
		if ser == nil {
			ser = &series{}
			s.history[key] = ser
		}
		ser.append(model.HistorySample{
			Timestamp:  p.ObservedAt,
			Lat:        p.Lat,
			Lon:        p.Lon,
			SpeedKt:    *p.SpeedKt,
			AltitudeFt: p.AltitudeFt,
			Heading:    p.Heading,
		}, cutoff)
	}
}

// pruneHistoryLocked drops identities unseen for more than twice the
// retention window, bounding memory for entities that stop reporting.
func (s *Store) pruneHistoryLocked(now time.Time) {
	expiry := now.Add(-2 * s.window)
	for key, seen := range s.lastSeen {
		if seen.Before(expiry) {
			delete(s.lastSeen, key)
			delete(s.history, key)
		}
	}
}

// GetSnapshot triggers an ungated refresh attempt, then returns a detached
// copy of the selected kinds with derived metrics attached. Mutating the
// returned snapshot cannot affect the store.
func (s *Store) GetSnapshot(ctx context.Context, mode model.Mode) model.Snapshot {
	s.Refresh(ctx, false)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []model.TrackerPoint
	switch mode {
	case model.ModeFlights:
		points = s.decorateLocked(s.flights)
	case model.ModeShips:
		points = s.decorateLocked(s.ships)
	default:
		mode = model.ModeAll
		points = append(s.decorateLocked(s.flights), s.decorateLocked(s.ships)...)
	}

	warnings := make([]string, len(s.warnings))
	copy(warnings, s.warnings)

	return model.Snapshot{
		Mode:        mode,
		Count:       len(points),
		RefreshedAt: s.lastRefresh,
		Warnings:    warnings,
		Points:      points,
	}
}

// decorateLocked copies points and fills in derived metrics from history.
// Caller holds mu (read or write).
func (s *Store) decorateLocked(points []model.TrackerPoint) []model.TrackerPoint {
	out := make([]model.TrackerPoint, len(points))
	for i, p := range points {
		p.Metrics = s.metricsLocked(p)
		out[i] = p
	}
	return out
}

func (s *Store) metricsLocked(p model.TrackerPoint) *model.DerivedMetrics {
	speedCap, volCap := flightSpeedCapKt, flightVolCapKt
	if p.Kind == model.KindShip {
		speedCap, volCap = shipSpeedCapKt, shipVolCapKt
	}

	m := &model.DerivedMetrics{}
	if p.SpeedKt != nil {
		m.SpeedHeat = clamp01(*p.SpeedKt / speedCap)
	}
	if ser := s.history[p.Identity().Key()]; ser != nil {
		if vol := ser.volatility(); vol != nil {
			m.SpeedVolatility = vol
			m.VolHeat = clamp01(*vol / volCap)
		}
	}
	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// History returns a copy of the identity's retained samples. Unknown
// identities yield an empty slice, not an error.
func (s *Store) History(id model.EntityIdentity) []model.HistorySample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser := s.history[id.Key()]
	if ser == nil {
		return nil
	}
	return ser.copySamples()
}

// LastRefresh returns the timestamp of the last completed provider round.
func (s *Store) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// TrackedEntities returns the number of identities currently retained in
// history, for metrics reporting.
func (s *Store) TrackedEntities() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
