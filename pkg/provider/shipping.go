package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/argosight/livetrack/pkg/model"
)

// ShippingConfig configures the shipping adapter. An empty FeedURL puts the
// adapter in demo mode.
type ShippingConfig struct {
	FeedURL string
}

// ShippingAdapter fetches and normalizes vessel positions.
type ShippingAdapter struct {
	cfg    ShippingConfig
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewShippingAdapter creates a shipping adapter.
func NewShippingAdapter(cfg ShippingConfig, logger zerolog.Logger) *ShippingAdapter {
	return &ShippingAdapter{
		cfg:    cfg,
		client: newHTTPClient(),
		logger: logger.With().Str("component", "shipping_adapter").Logger(),
		now:    time.Now,
	}
}

// Kind implements Adapter.
func (a *ShippingAdapter) Kind() model.Kind {
	return model.KindShip
}

// Fetch implements Adapter.
func (a *ShippingAdapter) Fetch(ctx context.Context, limit int) FetchResult {
	if a.cfg.FeedURL == "" {
		return FetchResult{
			Points:   a.demoDataset(limit),
			Warnings: []string{"shipping feed not configured; serving demo dataset"},
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.FeedURL, nil)
	if err != nil {
		return FetchResult{Warnings: []string{fmt.Sprintf("shipping provider: %v", err)}}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return FetchResult{Warnings: []string{fmt.Sprintf("shipping provider unavailable: %v", err)}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FetchResult{Warnings: []string{fmt.Sprintf("shipping provider returned status %d", resp.StatusCode)}}
	}

	body, err := readAllBounded(resp.Body)
	if err != nil {
		return FetchResult{Warnings: []string{fmt.Sprintf("shipping provider read: %v", err)}}
	}

	rows, err := decodeVesselPayload(body)
	if err != nil {
		return FetchResult{Warnings: []string{fmt.Sprintf("shipping provider decode: %v", err)}}
	}

	return FetchResult{Points: a.normalizeVessels(rows, limit)}
}

// vesselRow is one vessel record from the feed.
type vesselRow struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	SpeedKt     *float64 `json:"speed"`
	Course      *float64 `json:"course"`
	Flag        string   `json:"flag"`
	Destination string   `json:"destination"`
}

type vesselDocument struct {
	Data []vesselRow `json:"data"`
}

// decodeVesselPayload accepts either a bare JSON array of vessels or an
// object with a data array.
func decodeVesselPayload(data []byte) ([]vesselRow, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var rows []vesselRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("decode vessel array: %w", err)
		}
		return rows, nil
	}
	var doc vesselDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode vessel document: %w", err)
	}
	return doc.Data, nil
}

func (a *ShippingAdapter) normalizeVessels(rows []vesselRow, limit int) []model.TrackerPoint {
	observed := a.now().UTC()
	points := make([]model.TrackerPoint, 0, len(rows))
	for _, row := range rows {
		if row.Lat == nil || row.Lon == nil {
			continue
		}
		label := strings.TrimSpace(row.Name)
		if label == "" {
			label = "unnamed vessel"
		}
		points = append(points, model.TrackerPoint{
			Kind:       model.KindShip,
			Category:   ClassifyShipType(row.Type),
			Label:      label,
			Lat:        *row.Lat,
			Lon:        *row.Lon,
			SpeedKt:    row.SpeedKt,
			Heading:    row.Course,
			Country:    strings.TrimSpace(row.Flag),
			Industry:   "maritime",
			ObservedAt: observed,
		})
		if limit > 0 && len(points) >= limit {
			break
		}
	}
	return points
}

// demoDataset is a small fixed fleet served when no live feed is configured.
func (a *ShippingAdapter) demoDataset(limit int) []model.TrackerPoint {
	observed := a.now().UTC()
	f := func(v float64) *float64 { return &v }
	points := []model.TrackerPoint{
		{Kind: model.KindShip, Category: model.CategoryTanker, Label: "Meridian Pioneer",
			Lat: 51.95, Lon: 4.05, SpeedKt: f(12.4), Heading: f(254), Country: "Netherlands",
			Industry: "maritime", ObservedAt: observed},
		{Kind: model.KindShip, Category: model.CategoryCargo, Label: "Baltic Crane",
			Lat: 55.61, Lon: 12.88, SpeedKt: f(14.1), Heading: f(92), Country: "Denmark",
			Industry: "maritime", ObservedAt: observed},
		{Kind: model.KindShip, Category: model.CategoryPassenger, Label: "Aegean Dawn",
			Lat: 37.94, Lon: 23.64, SpeedKt: f(18.7), Heading: f(135), Country: "Greece",
			Industry: "maritime", ObservedAt: observed},
		{Kind: model.KindShip, Category: model.CategoryMilitary, Label: "Resolute Watch",
			Lat: 36.12, Lon: -5.35, SpeedKt: f(21.0), Heading: f(78), Country: "United Kingdom",
			Industry: "maritime", ObservedAt: observed},
		{Kind: model.KindShip, Category: model.CategoryFishing, Label: "Northern Haul",
			Lat: 62.01, Lon: -6.77, SpeedKt: f(6.2), Heading: f(310), Country: "Faroe Islands",
			Industry: "maritime", ObservedAt: observed},
	}
	if limit > 0 && limit < len(points) {
		points = points[:limit]
	}
	return points
}
