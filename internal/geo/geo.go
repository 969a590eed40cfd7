// Package geo holds the distance and trip-progress math used by dispatch.
package geo

import (
	"math"

	"curbly/internal/models"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle (haversine) distance between two
// coordinates in meters.
func DistanceMeters(a, b models.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// ProgressPercent maps the remaining distance to the destination onto
// [0,100]. Anything at or beyond the 5 km ceiling reads 0, arrival reads 100.
func ProgressPercent(current, destination models.LatLng) int {
	remaining := DistanceMeters(current, destination)
	if remaining <= 0 {
		return 100
	}
	if remaining >= models.ProgressCeilingMeters {
		return 0
	}
	return int(math.Round((1 - remaining/models.ProgressCeilingMeters) * 100))
}

// ETAMinutes estimates arrival time at the configured average speed.
// The second return is true when the worker is effectively arriving
// (estimate under one minute).
func ETAMinutes(distanceMeters float64) (int, bool) {
	minutes := int(math.Round(distanceMeters / 1000 / models.AverageSpeedKmh * 60))
	if minutes < 1 {
		return 0, true
	}
	return minutes, false
}
