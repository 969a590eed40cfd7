package service

import (
	"testing"

	"curbly/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionByRadius(t *testing.T) {
	springfield := models.LatLng{Lat: 39.7817, Lng: -89.6501}
	nearby := &models.Job{ID: "near", Destination: models.LatLng{Lat: 39.79, Lng: -89.64}}
	chicago := &models.Job{ID: "far", Destination: models.LatLng{Lat: 41.8781, Lng: -87.6298}}
	jobs := []*models.Job{nearby, chicago}

	t.Run("SplitsByDistance", func(t *testing.T) {
		part := PartitionByRadius(jobs, &springfield, models.DefaultRadiusMiles)
		require.Len(t, part.InRange, 1)
		require.Len(t, part.OutOfRange, 1)
		assert.Equal(t, "near", part.InRange[0].ID)
		assert.Equal(t, "far", part.OutOfRange[0].ID)
	})

	t.Run("NilLocationFailsOpen", func(t *testing.T) {
		part := PartitionByRadius(jobs, nil, models.DefaultRadiusMiles)
		assert.Len(t, part.InRange, 2)
		assert.Empty(t, part.OutOfRange)
	})

	t.Run("WideRadiusTakesEverything", func(t *testing.T) {
		part := PartitionByRadius(jobs, &springfield, 500)
		assert.Len(t, part.InRange, 2)
	})

	t.Run("EmptyPool", func(t *testing.T) {
		part := PartitionByRadius(nil, &springfield, models.DefaultRadiusMiles)
		assert.Empty(t, part.InRange)
		assert.Empty(t, part.OutOfRange)
	})
}
