package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argosight/livetrack/pkg/model"
)

func samplePoints() []model.TrackerPoint {
	return []model.TrackerPoint{
		{Kind: model.KindFlight, Label: "RCH401", Category: model.CategoryMilitary, Country: "United States", Operator: "USAF", Lat: 50.1, Lon: 4.2},
		{Kind: model.KindFlight, Label: "FDX88", Category: model.CategoryCargo, Country: "United States", Operator: "FedEx", FlightNumber: "FX88", Lat: 38.7, Lon: -90.3},
		{Kind: model.KindFlight, Label: "BAW12", Category: model.CategoryCommercial, Country: "United Kingdom", Operator: "British Airways", Lat: 51.5, Lon: -0.1},
		{Kind: model.KindShip, Label: "Baltic Crane", Category: model.CategoryCargo, Country: "Denmark", Lat: 55.7, Lon: 12.6},
		{Kind: model.KindShip, Label: "Meridian Pioneer", Category: model.CategoryTanker, Country: "Panama", Lat: 36.1, Lon: -5.4},
	}
}

func TestParseBBox(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *Bounds
		wantErr string
	}{
		{
			name:  "valid",
			input: "40,-10,60,20",
			want:  &Bounds{MinLat: 40, MinLon: -10, MaxLat: 60, MaxLon: 20},
		},
		{
			name:  "whitespace tolerated",
			input: " 40 , -10 , 60 , 20 ",
			want:  &Bounds{MinLat: 40, MinLon: -10, MaxLat: 60, MaxLon: 20},
		},
		{
			name:    "wrong component count",
			input:   "40,-10,60",
			wantErr: "expected minLat,minLon,maxLat,maxLon",
		},
		{
			name:    "non numeric",
			input:   "40,-10,sixty,20",
			wantErr: "component 3 is not a number",
		},
		{
			name:    "latitude out of range",
			input:   "40,-10,95,20",
			wantErr: "latitude out of range",
		},
		{
			name:    "longitude out of range",
			input:   "40,-200,60,20",
			wantErr: "longitude out of range",
		},
		{
			name:    "inverted latitudes",
			input:   "60,-10,40,20",
			wantErr: "min_lat greater than max_lat",
		},
		{
			name:    "inverted longitudes",
			input:   "40,20,60,-10",
			wantErr: "min_lon greater than max_lon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBBox(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBoundsContainsEdges(t *testing.T) {
	b := Bounds{MinLat: 40, MinLon: -10, MaxLat: 60, MaxLon: 20}
	assert.True(t, b.Contains(40, -10), "min corner is inside")
	assert.True(t, b.Contains(60, 20), "max corner is inside")
	assert.False(t, b.Contains(39.999, 0))
	assert.False(t, b.Contains(50, 20.001))
}

func TestApplyFilters(t *testing.T) {
	points := samplePoints()

	t.Run("category is case insensitive", func(t *testing.T) {
		got := ApplyCategoryFilter(points, "CARGO")
		require.Len(t, got, 2)
		assert.Equal(t, "FDX88", got[0].Label)
		assert.Equal(t, "Baltic Crane", got[1].Label)
	})

	t.Run("country and operator combine", func(t *testing.T) {
		got := ApplyFilters(points, Filters{Country: "united states", Operator: "fedex"})
		require.Len(t, got, 1)
		assert.Equal(t, "FDX88", got[0].Label)
	})

	t.Run("bbox restricts to europe", func(t *testing.T) {
		bbox, err := ParseBBox("45,-5,60,15")
		require.NoError(t, err)
		got := ApplyFilters(points, Filters{BBox: bbox})
		require.Len(t, got, 3)
	})

	t.Run("empty filters pass everything", func(t *testing.T) {
		got := ApplyFilters(points, Filters{})
		assert.Len(t, got, len(points))
	})

	t.Run("no match yields empty slice not nil", func(t *testing.T) {
		got := ApplyFilters(points, Filters{Category: "submarine"})
		require.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestSearch(t *testing.T) {
	points := samplePoints()

	t.Run("matches across default fields", func(t *testing.T) {
		got := Search(points, "united", nil, "", 0)
		assert.Len(t, got, 3)
	})

	t.Run("case insensitive substring", func(t *testing.T) {
		got := Search(points, "baltic", nil, "", 0)
		require.Len(t, got, 1)
		assert.Equal(t, "Baltic Crane", got[0].Label)
	})

	t.Run("restricted to one field", func(t *testing.T) {
		got := Search(points, "fx88", []string{"flight_number"}, "", 0)
		require.Len(t, got, 1)
		assert.Equal(t, "FDX88", got[0].Label)
	})

	t.Run("unknown fields are ignored", func(t *testing.T) {
		got := Search(points, "united", []string{"callsign", "country"}, "", 0)
		assert.Len(t, got, 3)
	})

	t.Run("kind filter", func(t *testing.T) {
		got := Search(points, "united", nil, model.KindShip, 0)
		assert.Empty(t, got)
	})

	t.Run("empty query yields nothing", func(t *testing.T) {
		assert.Empty(t, Search(points, "   ", nil, "", 0))
	})

	t.Run("limit truncates", func(t *testing.T) {
		got := Search(points, "united", nil, "", 2)
		assert.Len(t, got, 2)
	})

	t.Run("oversized limit clamped", func(t *testing.T) {
		many := make([]model.TrackerPoint, 0, 300)
		for i := 0; i < 300; i++ {
			many = append(many, model.TrackerPoint{Kind: model.KindShip, Label: "Vessel", Country: "Norway"})
		}
		got := Search(many, "vessel", nil, "", 10000)
		assert.Len(t, got, MaxSearchLimit)
	})
}

func TestPaginate(t *testing.T) {
	points := samplePoints()

	t.Run("window", func(t *testing.T) {
		page, off := Paginate(points, 1, 2)
		assert.Equal(t, 1, off)
		require.Len(t, page, 2)
		assert.Equal(t, "FDX88", page[0].Label)
		assert.Equal(t, "BAW12", page[1].Label)
	})

	t.Run("offset past end clamps to last page", func(t *testing.T) {
		page, off := Paginate(points, 50, 2)
		assert.Equal(t, 3, off)
		require.Len(t, page, 2)
		assert.Equal(t, "Baltic Crane", page[0].Label)
	})

	t.Run("negative offset clamps to zero", func(t *testing.T) {
		page, off := Paginate(points, -3, 2)
		assert.Equal(t, 0, off)
		require.Len(t, page, 2)
		assert.Equal(t, "RCH401", page[0].Label)
	})

	t.Run("zero limit returns everything", func(t *testing.T) {
		page, off := Paginate(points, 0, 0)
		assert.Equal(t, 0, off)
		assert.Len(t, page, len(points))
	})

	t.Run("same offset twice returns identical page", func(t *testing.T) {
		a, _ := Paginate(points, 2, 2)
		b, _ := Paginate(points, 2, 2)
		assert.Equal(t, a, b)
	})

	t.Run("page is a copy", func(t *testing.T) {
		page, _ := Paginate(points, 0, 1)
		page[0].Label = "mutated"
		assert.Equal(t, "RCH401", points[0].Label)
	})
}
