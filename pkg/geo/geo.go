// Package geo provides great-circle helpers for the tracker analysis path.
package geo

import (
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
)

// Mean Earth radius in kilometers.
const earthRadiusKm = 6371.01

// DistanceKm returns the great-circle distance between two coordinates.
// Spans under analysis can exceed tens of kilometers, so a planar
// approximation is not acceptable here.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * earthRadiusKm
}

// Centroid returns the spherical centroid of the given coordinates. The
// second return value is false when the input is empty.
func Centroid(lats, lons []float64) (float64, float64, bool) {
	if len(lats) == 0 || len(lats) != len(lons) {
		return 0, 0, false
	}
	var sum r3.Vector
	for i := range lats {
		p := s2.PointFromLatLng(s2.LatLngFromDegrees(lats[i], lons[i]))
		sum = sum.Add(p.Vector)
	}
	if sum.Norm() == 0 {
		return 0, 0, false
	}
	ll := s2.LatLngFromPoint(s2.Point{Vector: sum.Normalize()})
	return ll.Lat.Degrees(), ll.Lng.Degrees(), true
}
