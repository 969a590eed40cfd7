package geo

import (
	"testing"

	"curbly/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	springfield := models.LatLng{Lat: 39.7817, Lng: -89.6501}
	chicago := models.LatLng{Lat: 41.8781, Lng: -87.6298}

	// Springfield IL to Chicago is roughly 288.5 km great-circle.
	d := DistanceMeters(springfield, chicago)
	assert.InDelta(t, 288500, d, 1000)

	t.Run("symmetry", func(t *testing.T) {
		pairs := [][2]models.LatLng{
			{springfield, chicago},
			{{Lat: 0, Lng: 0}, {Lat: -33.8688, Lng: 151.2093}},
			{{Lat: 89.9, Lng: 10}, {Lat: -89.9, Lng: -170}},
		}
		for _, p := range pairs {
			assert.InDelta(t, DistanceMeters(p[0], p[1]), DistanceMeters(p[1], p[0]), 1e-6)
		}
	})

	t.Run("zero for identical points", func(t *testing.T) {
		assert.InDelta(t, 0, DistanceMeters(springfield, springfield), 1e-9)
	})
}

func TestProgressPercent(t *testing.T) {
	dest := models.LatLng{Lat: 39.7817, Lng: -89.6501}

	assert.Equal(t, 100, ProgressPercent(dest, dest))

	// ~0.00905 degrees latitude is about 1006 m.
	near := models.LatLng{Lat: dest.Lat + 0.00905, Lng: dest.Lng}
	p := ProgressPercent(near, dest)
	assert.Greater(t, p, 75)
	assert.Less(t, p, 85)

	far := models.LatLng{Lat: dest.Lat + 1, Lng: dest.Lng}
	assert.Equal(t, 0, ProgressPercent(far, dest))
}

func TestETAMinutes(t *testing.T) {
	minutes, arriving := ETAMinutes(15000) // 15 km at 30 km/h
	assert.Equal(t, 30, minutes)
	assert.False(t, arriving)

	minutes, arriving = ETAMinutes(100)
	assert.Equal(t, 0, minutes)
	assert.True(t, arriving)

	minutes, arriving = ETAMinutes(0)
	assert.True(t, arriving)
	assert.Zero(t, minutes)
}
