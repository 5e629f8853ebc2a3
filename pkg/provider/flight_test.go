package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argosight/livetrack/pkg/model"
)

func newTestFlightAdapter(t *testing.T, cfg FlightConfig) (*FlightAdapter, *time.Time) {
	t.Helper()
	a := NewFlightAdapter(cfg, zerolog.Nop())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }
	return a, &clock
}

func statesBody(states ...[]any) []byte {
	doc := map[string]any{"time": 1767268800, "states": states}
	data, _ := json.Marshal(doc)
	return data
}

// state builds a minimal aggregator state vector.
func state(icao, callsign, country string, lon, lat, altM, speedMS, track float64) []any {
	return []any{icao, callsign, country, nil, nil, lon, lat, altM, false, speedMS, track}
}

func TestFlightFetchBackoffDeadlinesIncrease(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a, clock := newTestFlightAdapter(t, FlightConfig{FallbackURL: srv.URL})

	var deadlines []time.Time
	for i := 0; i < 3; i++ {
		res := a.Fetch(context.Background(), 10)
		require.Empty(t, res.Points)
		require.NotEmpty(t, res.Warnings)
		deadlines = append(deadlines, a.CooldownUntil())
		// let the cooldown lapse before the next simulated 429
		*clock = clock.Add(61 * time.Second)
	}

	assert.Equal(t, int64(3), calls.Load())
	for i := 1; i < len(deadlines); i++ {
		assert.True(t, deadlines[i].After(deadlines[i-1]),
			"deadline %d (%s) should be after deadline %d (%s)", i, deadlines[i], i-1, deadlines[i-1])
	}
}

func TestFlightFetchCooldownSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests) // no Retry-After: default 60s
	}))
	defer srv.Close()

	a, clock := newTestFlightAdapter(t, FlightConfig{FallbackURL: srv.URL})

	a.Fetch(context.Background(), 10)
	require.Equal(t, int64(1), calls.Load())

	// all calls inside the cooldown window short-circuit
	for i := 0; i < 5; i++ {
		*clock = clock.Add(5 * time.Second)
		res := a.Fetch(context.Background(), 10)
		assert.Empty(t, res.Points)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "cooldown")
	}
	assert.Equal(t, int64(1), calls.Load(), "no network calls while a deadline is active")
}

func TestFlightFetchThrottle(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write(statesBody())
	}))
	defer srv.Close()

	a, clock := newTestFlightAdapter(t, FlightConfig{FallbackURL: srv.URL, MinInterval: 30 * time.Second})

	a.Fetch(context.Background(), 10)
	require.Equal(t, int64(1), calls.Load())

	*clock = clock.Add(10 * time.Second)
	res := a.Fetch(context.Background(), 10)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "throttled")
	assert.Equal(t, int64(1), calls.Load())

	*clock = clock.Add(30 * time.Second)
	a.Fetch(context.Background(), 10)
	assert.Equal(t, int64(2), calls.Load())
}

func TestFlightFetchAnonymousWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write(statesBody(state("ae1460", "RCH401", "United States", -77.0, 38.9, 9000, 230, 270)))
	}))
	defer srv.Close()

	a, _ := newTestFlightAdapter(t, FlightConfig{FallbackURL: srv.URL})
	res := a.Fetch(context.Background(), 10)

	require.Len(t, res.Points, 1)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "anonymous")
}

func TestFlightFetchBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "watcher", user)
		assert.Equal(t, "hunter2", pass)
		w.Write(statesBody())
	}))
	defer srv.Close()

	a, _ := newTestFlightAdapter(t, FlightConfig{
		FallbackURL: srv.URL,
		BasicUser:   "watcher",
		BasicPass:   "hunter2",
	})
	res := a.Fetch(context.Background(), 10)

	for _, warn := range res.Warnings {
		assert.NotContains(t, warn, "anonymous")
	}
}

func TestFlightOAuthTokenCached(t *testing.T) {
	var tokenCalls, apiCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 600})
	})
	mux.HandleFunc("/states", func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Write(statesBody())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, clock := newTestFlightAdapter(t, FlightConfig{
		FallbackURL:       srv.URL + "/states",
		OAuthClientID:     "cid",
		OAuthClientSecret: "csecret",
		OAuthTokenURL:     srv.URL + "/token",
	})

	a.Fetch(context.Background(), 10)
	*clock = clock.Add(time.Minute)
	a.Fetch(context.Background(), 10)

	assert.Equal(t, int64(2), apiCalls.Load())
	assert.Equal(t, int64(1), tokenCalls.Load(), "token refreshed only when expired")

	// past expiry the token is fetched again
	*clock = clock.Add(10 * time.Minute)
	a.Fetch(context.Background(), 10)
	assert.Equal(t, int64(2), tokenCalls.Load())
}

func TestFlightCivilExclusion(t *testing.T) {
	body := statesBody(
		state("a00001", "BAW117", "United Kingdom", 0.1, 51.5, 10000, 220, 90),   // commercial, ordinary
		state("a00002", "N542PB", "United States", -80.1, 26.2, 2000, 80, 180),   // private, ordinary
		state("a00003", "RCH401", "United States", -77.0, 38.9, 9000, 230, 270),  // military
		state("a00004", "DAL202", "United States", -73.9, 40.6, 12000, 280, 45),  // commercial, anomalous alt (39370 ft)
		state("a00005", "UAL999", "United States", -118.4, 33.9, 5000, 270, 200), // commercial, anomalous speed (~525 kt)
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	t.Run("default excludes ordinary civil traffic", func(t *testing.T) {
		a, _ := newTestFlightAdapter(t, FlightConfig{FallbackURL: srv.URL})
		res := a.Fetch(context.Background(), 50)

		labels := make([]string, 0, len(res.Points))
		for _, p := range res.Points {
			labels = append(labels, p.Label)
		}
		assert.ElementsMatch(t, []string{"RCH401", "DAL202", "UAL999"}, labels)
	})

	t.Run("include flag keeps everything", func(t *testing.T) {
		a, _ := newTestFlightAdapter(t, FlightConfig{FallbackURL: srv.URL, IncludeCivil: true})
		res := a.Fetch(context.Background(), 50)
		assert.Len(t, res.Points, 5)
	})
}

func TestFlightFetchProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // fetch hits a dead server

	a, _ := newTestFlightAdapter(t, FlightConfig{FallbackURL: srv.URL})
	res := a.Fetch(context.Background(), 10)

	assert.Empty(t, res.Points)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "unavailable")
}

func TestFlightFeedSources(t *testing.T) {
	feedJSON := `{"aircraft":[
		{"hex":"ae1460","flight":"RCH401","r":"99-0401","lat":38.9,"lon":-77.0,"alt_baro":31000,"gs":440,"track":270},
		{"hex":"a1b2c3","flight":"","r":"","lat":40.0,"lon":-75.0,"alt_baro":"ground","gs":10}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedJSON))
	}))
	defer srv.Close()

	a, _ := newTestFlightAdapter(t, FlightConfig{FeedURLs: []string{srv.URL}})
	res := a.Fetch(context.Background(), 10)

	require.Len(t, res.Points, 1, "ordinary civil hex-only row is excluded")
	p := res.Points[0]
	assert.Equal(t, model.KindFlight, p.Kind)
	assert.Equal(t, model.CategoryMilitary, p.Category)
	assert.Equal(t, "RCH401", p.Label)
	require.NotNil(t, p.AltitudeFt)
	assert.InDelta(t, 31000, *p.AltitudeFt, 0.1)
}

func TestFlightFeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aircraft.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"hex":"ae0001","flight":"NATO05","lat":52.3,"lon":4.8,"alt_baro":28000,"gs":410,"track":90}
	]`), 0o644))

	a, _ := newTestFlightAdapter(t, FlightConfig{FeedFiles: []string{path}})
	res := a.Fetch(context.Background(), 10)

	require.Len(t, res.Points, 1)
	assert.Equal(t, model.CategoryMilitary, res.Points[0].Category)
	assert.Empty(t, res.Warnings)
}

func TestFlightFeedBadSourceWarns(t *testing.T) {
	a, _ := newTestFlightAdapter(t, FlightConfig{FeedFiles: []string{"/nonexistent/aircraft.json"}})
	res := a.Fetch(context.Background(), 10)

	assert.Empty(t, res.Points)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "feed file")
}
