package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKm                 float64
		tolKm                  float64
	}{
		{
			name: "paris to london",
			lat1: 48.8566, lon1: 2.3522,
			lat2: 51.5074, lon2: -0.1278,
			wantKm: 344, tolKm: 3,
		},
		{
			name: "same point",
			lat1: 10, lon1: 20,
			lat2: 10, lon2: 20,
			wantKm: 0, tolKm: 0.001,
		},
		{
			name: "one degree of latitude",
			lat1: 0, lon1: 0,
			lat2: 1, lon2: 0,
			wantKm: 111.2, tolKm: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.wantKm, got, tt.tolKm)
		})
	}
}

func TestCentroid(t *testing.T) {
	lats := []float64{10, 10, 12, 12}
	lons := []float64{20, 22, 20, 22}

	lat, lon, ok := Centroid(lats, lons)
	assert.True(t, ok)
	assert.InDelta(t, 11, lat, 0.05)
	assert.InDelta(t, 21, lon, 0.05)
}

func TestCentroidEmpty(t *testing.T) {
	_, _, ok := Centroid(nil, nil)
	assert.False(t, ok)
}
