package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argosight/livetrack/pkg/model"
	"github.com/argosight/livetrack/pkg/provider"
)

// stubAdapter serves canned results and counts calls.
type stubAdapter struct {
	kind    model.Kind
	calls   atomic.Int64
	results func() provider.FetchResult
}

func (s *stubAdapter) Kind() model.Kind { return s.kind }

func (s *stubAdapter) Fetch(_ context.Context, _ int) provider.FetchResult {
	s.calls.Add(1)
	if s.results == nil {
		return provider.FetchResult{}
	}
	return s.results()
}

func speedPoint(kind model.Kind, label string, speedKt float64, observed time.Time) model.TrackerPoint {
	return model.TrackerPoint{
		Kind:       kind,
		Category:   model.CategoryCargo,
		Label:      label,
		Lat:        50.0,
		Lon:        4.0,
		SpeedKt:    &speedKt,
		Country:    "Belgium",
		ObservedAt: observed,
	}
}

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(flights, ships *stubAdapter, clock *testClock) *Store {
	return New(flights, ships, Options{
		MinRefreshInterval: 20 * time.Second,
		HistoryWindow:      900 * time.Second,
		Logger:             zerolog.Nop(),
		Now:                clock.now,
	})
}

func TestRefreshGateSuppressesProviderCalls(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	flights := &stubAdapter{kind: model.KindFlight}
	ships := &stubAdapter{kind: model.KindShip}
	st := newTestStore(flights, ships, clock)

	st.Refresh(context.Background(), false)
	require.Equal(t, int64(1), flights.calls.Load())

	// within the gate: no provider calls
	clock.advance(5 * time.Second)
	st.Refresh(context.Background(), false)
	assert.Equal(t, int64(1), flights.calls.Load())
	assert.Equal(t, int64(1), ships.calls.Load())

	// forced bypasses the gate
	st.Refresh(context.Background(), true)
	assert.Equal(t, int64(2), flights.calls.Load())

	// after the interval elapses, ungated refresh proceeds
	clock.advance(21 * time.Second)
	st.Refresh(context.Background(), false)
	assert.Equal(t, int64(3), flights.calls.Load())
}

func TestReadersBypassInFlightRefresh(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	fetchStarted := make(chan struct{})
	fetchRelease := make(chan struct{})
	var round atomic.Int64
	ships := &stubAdapter{kind: model.KindShip, results: func() provider.FetchResult {
		if round.Add(1) > 1 {
			close(fetchStarted)
			<-fetchRelease
		}
		return provider.FetchResult{Points: []model.TrackerPoint{
			speedPoint(model.KindShip, "Steady", 11, clock.t),
		}}
	}}
	flights := &stubAdapter{kind: model.KindFlight}
	st := newTestStore(flights, ships, clock)

	// seed the cache, then park the next provider round inside Fetch
	st.Refresh(context.Background(), true)
	clock.advance(30 * time.Second)

	refreshDone := make(chan struct{})
	go func() {
		st.Refresh(context.Background(), true)
		close(refreshDone)
	}()
	<-fetchStarted

	// a concurrent reader gets the last good cache instead of blocking
	snapC := make(chan model.Snapshot, 1)
	go func() {
		snapC <- st.GetSnapshot(context.Background(), model.ModeShips)
	}()
	select {
	case snap := <-snapC:
		require.Equal(t, 1, snap.Count)
		assert.Equal(t, "Steady", snap.Points[0].Label)
	case <-time.After(2 * time.Second):
		t.Fatal("reader blocked behind an in-flight refresh")
	}
	assert.Equal(t, int64(2), round.Load(), "the bypassed reader must not trigger its own fetch")

	close(fetchRelease)
	<-refreshDone
	assert.True(t, st.LastRefresh().Equal(clock.t), "the parked round must land after release")
}

func TestRefreshRetainsCacheOnEmptyResult(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	serveFlights := true
	flights := &stubAdapter{kind: model.KindFlight, results: func() provider.FetchResult {
		if !serveFlights {
			return provider.FetchResult{}
		}
		return provider.FetchResult{Points: []model.TrackerPoint{
			speedPoint(model.KindFlight, "RCH401", 420, clock.t),
		}}
	}}
	ships := &stubAdapter{kind: model.KindShip, results: func() provider.FetchResult {
		return provider.FetchResult{Points: []model.TrackerPoint{
			speedPoint(model.KindShip, "Baltic Crane", 14, clock.t),
		}}
	}}
	st := newTestStore(flights, ships, clock)

	st.Refresh(context.Background(), true)
	snap := st.GetSnapshot(context.Background(), model.ModeAll)
	require.Equal(t, 2, snap.Count)

	// provider goes dark; cache must be retained with a stale warning
	serveFlights = false
	clock.advance(30 * time.Second)
	st.Refresh(context.Background(), true)

	snap = st.GetSnapshot(context.Background(), model.ModeAll)
	assert.Equal(t, 2, snap.Count)

	found := false
	for _, w := range snap.Warnings {
		if w == "flight provider returned empty; showing cached data" {
			found = true
		}
	}
	assert.True(t, found, "stale warning expected, got %v", snap.Warnings)
}

func TestVolatilityRequiresMinimumSamples(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	speeds := []float64{10, 12, 14, 16, 18}
	idx := 0
	ships := &stubAdapter{kind: model.KindShip, results: func() provider.FetchResult {
		s := speeds[idx]
		if idx < len(speeds)-1 {
			idx++
		}
		return provider.FetchResult{Points: []model.TrackerPoint{
			speedPoint(model.KindShip, "Nordic Star", s, clock.t),
		}}
	}}
	flights := &stubAdapter{kind: model.KindFlight}
	st := newTestStore(flights, ships, clock)

	// three samples: volatility must be nil, not zero
	for i := 0; i < 3; i++ {
		if i > 0 {
			clock.advance(10 * time.Second)
		}
		st.Refresh(context.Background(), true)
	}
	// clock unchanged since the last round, so GetSnapshot stays gated
	snap := st.GetSnapshot(context.Background(), model.ModeShips)
	require.Equal(t, 1, snap.Count)
	require.NotNil(t, snap.Points[0].Metrics)
	assert.Nil(t, snap.Points[0].Metrics.SpeedVolatility)

	// fourth sample makes it computable
	clock.advance(10 * time.Second)
	st.Refresh(context.Background(), true)
	snap = st.GetSnapshot(context.Background(), model.ModeShips)
	require.NotNil(t, snap.Points[0].Metrics.SpeedVolatility)
	assert.Greater(t, *snap.Points[0].Metrics.SpeedVolatility, 0.0)
}

func TestHeatValuesClamped(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	flights := &stubAdapter{kind: model.KindFlight, results: func() provider.FetchResult {
		fast, slow := 99999.0, -50.0
		return provider.FetchResult{Points: []model.TrackerPoint{
			speedPoint(model.KindFlight, "fast", fast, clock.t),
			speedPoint(model.KindFlight, "slow", slow, clock.t),
		}}
	}}
	ships := &stubAdapter{kind: model.KindShip}
	st := newTestStore(flights, ships, clock)

	snap := st.GetSnapshot(context.Background(), model.ModeFlights)
	require.Equal(t, 2, snap.Count)
	for _, p := range snap.Points {
		require.NotNil(t, p.Metrics)
		assert.GreaterOrEqual(t, p.Metrics.SpeedHeat, 0.0)
		assert.LessOrEqual(t, p.Metrics.SpeedHeat, 1.0)
		assert.GreaterOrEqual(t, p.Metrics.VolHeat, 0.0)
		assert.LessOrEqual(t, p.Metrics.VolHeat, 1.0)
	}
}

func TestHistoryEvictionAndPrune(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	label := "Wanderer"
	ships := &stubAdapter{kind: model.KindShip, results: func() provider.FetchResult {
		return provider.FetchResult{Points: []model.TrackerPoint{
			speedPoint(model.KindShip, label, 9, clock.t),
		}}
	}}
	flights := &stubAdapter{kind: model.KindFlight}
	st := newTestStore(flights, ships, clock)

	id := model.NewEntityIdentity(model.KindShip, "Wanderer", "Belgium", "cargo")

	// fill history over 10 minutes at 1-minute cadence
	for i := 0; i < 10; i++ {
		st.Refresh(context.Background(), true)
		clock.advance(time.Minute)
	}
	require.Len(t, st.History(id), 10)

	// old samples fall out of the 15-minute window
	for i := 0; i < 10; i++ {
		st.Refresh(context.Background(), true)
		clock.advance(time.Minute)
	}
	samples := st.History(id)
	assert.NotEmpty(t, samples)
	for _, s := range samples {
		assert.True(t, clock.t.Sub(s.Timestamp) <= 900*time.Second)
	}

	// identities unseen for twice the window are pruned once the provider
	// starts reporting a different vessel
	label = "Replacement"
	clock.advance(31 * time.Minute)
	st.Refresh(context.Background(), true)
	assert.Empty(t, st.History(id))
	assert.Equal(t, 1, st.TrackedEntities())
}

func TestSnapshotIsDetachedCopy(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ships := &stubAdapter{kind: model.KindShip, results: func() provider.FetchResult {
		return provider.FetchResult{Points: []model.TrackerPoint{
			speedPoint(model.KindShip, "Original", 10, clock.t),
		}}
	}}
	flights := &stubAdapter{kind: model.KindFlight}
	st := newTestStore(flights, ships, clock)

	snap := st.GetSnapshot(context.Background(), model.ModeShips)
	require.Equal(t, 1, snap.Count)
	snap.Points[0].Label = "Mutated"
	snap.Warnings = append(snap.Warnings, "mutated")

	again := st.GetSnapshot(context.Background(), model.ModeShips)
	assert.Equal(t, "Original", again.Points[0].Label)
}

func TestRefreshHookReceivesStats(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ships := &stubAdapter{kind: model.KindShip, results: func() provider.FetchResult {
		return provider.FetchResult{Points: []model.TrackerPoint{
			speedPoint(model.KindShip, "Hooked", 10, clock.t),
		}}
	}}
	flights := &stubAdapter{kind: model.KindFlight}
	st := newTestStore(flights, ships, clock)

	var got []RefreshStats
	st.SetRefreshHook(func(stats RefreshStats) {
		got = append(got, stats)
	})

	st.Refresh(context.Background(), true)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].ShipCount)
	assert.Equal(t, 0, got[0].FlightCount)
	assert.True(t, got[0].Forced)
}
