package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/argosight/livetrack/pkg/model"
)

// Anomaly thresholds: civil traffic exhibiting these values is operationally
// interesting and kept regardless of the civil-inclusion flag.
const (
	anomalousSpeedKt     = 520.0
	anomalousAltitudeFt  = 38000.0
	defaultRetryAfterSec = 60
)

// FlightConfig configures the flight adapter. Explicit feed sources take
// precedence over the fallback aggregator API.
type FlightConfig struct {
	// FeedURLs and FeedFiles serve dump1090-style JSON: either a bare array
	// of aircraft objects or {"aircraft": [...]}.
	FeedURLs  []string
	FeedFiles []string

	// FallbackURL is an OpenSky-style /states/all endpoint used when no feed
	// sources are configured.
	FallbackURL string

	// Basic-auth credentials for the fallback API.
	BasicUser string
	BasicPass string

	// OAuth client-credentials for the fallback API; preferred over basic
	// auth when both are configured.
	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string

	// IncludeCivil keeps commercial/private traffic that would otherwise be
	// excluded (anomalous entries are always kept).
	IncludeCivil bool

	// MinInterval suppresses fetches faster than this cadence; zero disables
	// the throttle.
	MinInterval time.Duration
}

// FlightAdapter fetches and normalizes aircraft positions.
type FlightAdapter struct {
	cfg    FlightConfig
	client *http.Client
	logger zerolog.Logger

	mu            sync.Mutex
	lastAttempt   time.Time
	cooldownUntil time.Time
	token         string
	tokenExpiry   time.Time

	now func() time.Time
}

// NewFlightAdapter creates a flight adapter.
func NewFlightAdapter(cfg FlightConfig, logger zerolog.Logger) *FlightAdapter {
	if cfg.FallbackURL == "" {
		cfg.FallbackURL = "https://opensky-network.org/api/states/all"
	}
	return &FlightAdapter{
		cfg:    cfg,
		client: newHTTPClient(),
		logger: logger.With().Str("component", "flight_adapter").Logger(),
		now:    time.Now,
	}
}

// Kind implements Adapter.
func (a *FlightAdapter) Kind() model.Kind {
	return model.KindFlight
}

// Fetch implements Adapter. Throttle and cooldown gates are re-evaluated on
// every call; while either is active no network call is made.
func (a *FlightAdapter) Fetch(ctx context.Context, limit int) FetchResult {
	now := a.now()

	a.mu.Lock()
	if !a.cooldownUntil.IsZero() && now.Before(a.cooldownUntil) {
		remaining := a.cooldownUntil.Sub(now).Round(time.Second)
		a.mu.Unlock()
		return FetchResult{Warnings: []string{
			fmt.Sprintf("flight provider in rate-limit cooldown for %s", remaining),
		}}
	}
	if a.cfg.MinInterval > 0 && !a.lastAttempt.IsZero() && now.Sub(a.lastAttempt) < a.cfg.MinInterval {
		a.mu.Unlock()
		return FetchResult{Warnings: []string{"flight provider throttled; request suppressed"}}
	}
	a.lastAttempt = now
	a.mu.Unlock()

	if len(a.cfg.FeedURLs) > 0 || len(a.cfg.FeedFiles) > 0 {
		return a.fetchFeeds(ctx, limit)
	}
	return a.fetchFallback(ctx, limit)
}

// fetchFeeds reads all configured URL and file feeds and merges their rows.
func (a *FlightAdapter) fetchFeeds(ctx context.Context, limit int) FetchResult {
	var res FetchResult
	var rows []feedAircraft

	for _, feedURL := range a.cfg.FeedURLs {
		batch, err := a.fetchFeedURL(ctx, feedURL)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("flight feed %s: %v", feedURL, err))
			continue
		}
		rows = append(rows, batch...)
	}
	for _, path := range a.cfg.FeedFiles {
		batch, err := readFeedFile(path)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("flight feed file %s: %v", path, err))
			continue
		}
		rows = append(rows, batch...)
	}

	res.Points = a.normalizeRows(rows, limit)
	return res
}

// feedAircraft is a dump1090-style aircraft row.
type feedAircraft struct {
	Hex          string   `json:"hex"`
	Flight       string   `json:"flight"`
	Registration string   `json:"r"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	// alt_baro is a number, or the string "ground" for taxiing aircraft
	AltBaro any      `json:"alt_baro"`
	GS      *float64 `json:"gs"`
	Track   *float64 `json:"track"`
	Country string   `json:"country"`
}

func (r feedAircraft) altitudeFt() *float64 {
	if v, ok := r.AltBaro.(float64); ok {
		return &v
	}
	return nil
}

type feedDocument struct {
	Aircraft []feedAircraft `json:"aircraft"`
}

func decodeFeedPayload(data []byte) ([]feedAircraft, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var rows []feedAircraft
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("decode aircraft array: %w", err)
		}
		return rows, nil
	}
	var doc feedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode aircraft document: %w", err)
	}
	return doc.Aircraft, nil
}

func (a *FlightAdapter) fetchFeedURL(ctx context.Context, feedURL string) ([]feedAircraft, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var buf []byte
	if buf, err = readAllBounded(resp.Body); err != nil {
		return nil, err
	}
	return decodeFeedPayload(buf)
}

func readFeedFile(path string) ([]feedAircraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeFeedPayload(data)
}

// fetchFallback queries the public aggregator API, authenticating with OAuth
// client-credentials when configured, then basic auth, then anonymously.
func (a *FlightAdapter) fetchFallback(ctx context.Context, limit int) FetchResult {
	var res FetchResult

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.FallbackURL, nil)
	if err != nil {
		return FetchResult{Warnings: []string{fmt.Sprintf("flight provider: %v", err)}}
	}

	switch {
	case a.cfg.OAuthClientID != "" && a.cfg.OAuthClientSecret != "":
		token, err := a.oauthToken(ctx)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("flight provider oauth: %v", err))
		} else {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case a.cfg.BasicUser != "" && a.cfg.BasicPass != "":
		req.SetBasicAuth(a.cfg.BasicUser, a.cfg.BasicPass)
	default:
		res.Warnings = append(res.Warnings,
			"flight provider has no credentials configured; using anonymous access with reduced rate limits")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("flight provider unavailable: %v", err))
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		deadline := a.enterCooldown(resp.Header.Get("Retry-After"))
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("flight provider rate limited; backing off until %s", deadline.Format(time.RFC3339)))
		return res
	}
	if resp.StatusCode != http.StatusOK {
		res.Warnings = append(res.Warnings, fmt.Sprintf("flight provider returned status %d", resp.StatusCode))
		return res
	}

	body, err := readAllBounded(resp.Body)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("flight provider read: %v", err))
		return res
	}

	var states statesDocument
	if err := json.Unmarshal(body, &states); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("flight provider decode: %v", err))
		return res
	}

	res.Points = a.normalizeStates(states, limit)
	if len(res.Points) == 0 {
		res.Warnings = append(res.Warnings, "flight provider returned no usable states")
	}
	return res
}

// enterCooldown records a 429 backoff deadline and returns it. Each new 429
// pushes the deadline further out from the current clock.
func (a *FlightAdapter) enterCooldown(retryAfter string) time.Time {
	seconds := defaultRetryAfterSec
	if retryAfter != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && n > 0 {
			seconds = n
		}
	}
	deadline := a.now().Add(time.Duration(seconds) * time.Second)

	a.mu.Lock()
	a.cooldownUntil = deadline
	a.mu.Unlock()

	a.logger.Warn().Time("until", deadline).Msg("Flight provider entering rate-limit cooldown")
	return deadline
}

// CooldownUntil exposes the current backoff deadline for health reporting.
func (a *FlightAdapter) CooldownUntil() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cooldownUntil
}

// oauthTokenResponse is the client-credentials grant response.
type oauthTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// oauthToken returns the cached token, refreshing only when expired.
func (a *FlightAdapter) oauthToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.token != "" && a.now().Before(a.tokenExpiry) {
		token := a.token
		a.mu.Unlock()
		return token, nil
	}
	a.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.cfg.OAuthClientID)
	form.Set("client_secret", a.cfg.OAuthClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.OAuthTokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tok oauthTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access token")
	}

	expiry := a.now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	a.mu.Lock()
	a.token = tok.AccessToken
	// refresh slightly early so in-flight requests never carry a dead token
	a.tokenExpiry = expiry.Add(-30 * time.Second)
	a.mu.Unlock()

	a.logger.Debug().Time("expiry", expiry).Msg("Refreshed OAuth token")
	return tok.AccessToken, nil
}

// statesDocument is the aggregator /states/all response. Each state vector is
// a positional array; only the consumed indexes are documented here.
type statesDocument struct {
	Time   int64   `json:"time"`
	States [][]any `json:"states"`
}

const (
	stateIdxICAO     = 0
	stateIdxCallsign = 1
	stateIdxCountry  = 2
	stateIdxLon      = 5
	stateIdxLat      = 6
	stateIdxAltM     = 7
	stateIdxSpeedMS  = 9
	stateIdxTrack    = 10
)

const (
	msToKt = 1.9438452
	mToFt  = 3.28084
)

func stringAt(row []any, idx int) string {
	if idx >= len(row) {
		return ""
	}
	if s, ok := row[idx].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func floatAt(row []any, idx int) *float64 {
	if idx >= len(row) {
		return nil
	}
	if f, ok := row[idx].(float64); ok {
		return &f
	}
	return nil
}

func (a *FlightAdapter) normalizeStates(doc statesDocument, limit int) []model.TrackerPoint {
	observed := time.Unix(doc.Time, 0).UTC()
	if doc.Time == 0 {
		observed = a.now().UTC()
	}

	points := make([]model.TrackerPoint, 0, len(doc.States))
	for _, row := range doc.States {
		lat := floatAt(row, stateIdxLat)
		lon := floatAt(row, stateIdxLon)
		if lat == nil || lon == nil {
			continue
		}

		callsign := stringAt(row, stateIdxCallsign)
		label := callsign
		if label == "" {
			label = stringAt(row, stateIdxICAO)
		}
		if label == "" {
			continue
		}

		var speedKt *float64
		if ms := floatAt(row, stateIdxSpeedMS); ms != nil {
			kt := *ms * msToKt
			speedKt = &kt
		}
		var altFt *float64
		if m := floatAt(row, stateIdxAltM); m != nil {
			ft := *m * mToFt
			altFt = &ft
		}

		point := model.TrackerPoint{
			Kind:         model.KindFlight,
			Category:     ClassifyFlight(callsign),
			Label:        label,
			FlightNumber: callsign,
			TailNumber:   stringAt(row, stateIdxICAO),
			Lat:          *lat,
			Lon:          *lon,
			AltitudeFt:   altFt,
			SpeedKt:      speedKt,
			Heading:      floatAt(row, stateIdxTrack),
			Country:      stringAt(row, stateIdxCountry),
			Industry:     "aviation",
			ObservedAt:   observed,
		}
		if !a.keepPoint(point) {
			continue
		}
		points = append(points, point)
		if limit > 0 && len(points) >= limit {
			break
		}
	}
	return points
}

func (a *FlightAdapter) normalizeRows(rows []feedAircraft, limit int) []model.TrackerPoint {
	observed := a.now().UTC()
	points := make([]model.TrackerPoint, 0, len(rows))
	for _, row := range rows {
		if row.Lat == nil || row.Lon == nil {
			continue
		}
		callsign := strings.TrimSpace(row.Flight)
		label := callsign
		if label == "" {
			label = strings.TrimSpace(row.Registration)
		}
		if label == "" {
			label = strings.TrimSpace(row.Hex)
		}
		if label == "" {
			continue
		}

		point := model.TrackerPoint{
			Kind:         model.KindFlight,
			Category:     ClassifyFlight(callsign),
			Label:        label,
			FlightNumber: callsign,
			TailNumber:   strings.TrimSpace(row.Registration),
			Lat:          *row.Lat,
			Lon:          *row.Lon,
			AltitudeFt:   row.altitudeFt(),
			SpeedKt:      row.GS,
			Heading:      row.Track,
			Country:      strings.TrimSpace(row.Country),
			Industry:     "aviation",
			ObservedAt:   observed,
		}
		if !a.keepPoint(point) {
			continue
		}
		points = append(points, point)
		if limit > 0 && len(points) >= limit {
			break
		}
	}
	return points
}

// keepPoint applies the civil-exclusion policy. Commercial and private
// traffic is dropped unless inclusion is enabled or the entry is anomalous.
func (a *FlightAdapter) keepPoint(p model.TrackerPoint) bool {
	if p.Category != model.CategoryCommercial && p.Category != model.CategoryPrivate {
		return true
	}
	if a.cfg.IncludeCivil {
		return true
	}
	return isAnomalous(p)
}

func isAnomalous(p model.TrackerPoint) bool {
	if p.SpeedKt != nil && *p.SpeedKt >= anomalousSpeedKt {
		return true
	}
	if p.AltitudeFt != nil && *p.AltitudeFt >= anomalousAltitudeFt {
		return true
	}
	return false
}
