package geo

import (
	"fmt"
	"math"
)

const (
	earthRadiusKm = 6371.0

	// KmPerDegree scales raw degree distances into a coarse kilometer figure.
	// Only valid for ranking, never for display.
	KmPerDegree = 111.32

	walkingSpeedKmh = 5.0
)

// HaversineKm returns the great-circle distance in kilometers between two
// points. Inputs must already be valid coordinates (see ValidCoordinate).
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push a a hair above 1 for antipodal points.
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// WalkingMinutes estimates walking time at a constant 5 km/h, floored.
func WalkingMinutes(distanceKm float64) int {
	if distanceKm <= 0 || math.IsNaN(distanceKm) {
		return 0
	}
	return int(math.Floor(distanceKm / walkingSpeedKmh * 60))
}

// FlatDistanceKm is the Euclidean distance over raw degrees scaled by
// KmPerDegree.
func FlatDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	return math.Sqrt(dLat*dLat+dLon*dLon) * KmPerDegree
}

// ValidCoordinate rejects latitudes outside [-90,90], longitudes outside
// [-180,180] and non-finite values.
func ValidCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}

// FormatCoordinate renders the placeholder used when no address is known.
func FormatCoordinate(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}
