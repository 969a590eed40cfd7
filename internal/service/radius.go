package service

import (
	"curbly/internal/geo"
	"curbly/internal/models"
)

// RadiusPartition buckets the open pool for one worker.
type RadiusPartition struct {
	InRange    []*models.Job
	OutOfRange []*models.Job
}

// PartitionByRadius splits open jobs by distance from the worker. A nil
// worker location puts everything in range: hiding the whole pool because
// location is momentarily unavailable is worse than showing distant jobs.
// Input order is preserved within each bucket.
func PartitionByRadius(openJobs []*models.Job, workerLocation *models.LatLng, radiusMiles float64) RadiusPartition {
	part := RadiusPartition{
		InRange:    make([]*models.Job, 0, len(openJobs)),
		OutOfRange: make([]*models.Job, 0),
	}

	if workerLocation == nil {
		part.InRange = append(part.InRange, openJobs...)
		return part
	}

	for _, job := range openJobs {
		miles := geo.DistanceMeters(*workerLocation, job.Destination) / models.MetersPerMile
		if miles <= radiusMiles {
			part.InRange = append(part.InRange, job)
		} else {
			part.OutOfRange = append(part.OutOfRange, job)
		}
	}
	return part
}
