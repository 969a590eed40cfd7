package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"curbly/internal/config"
	"curbly/internal/domain"
	"curbly/internal/models"
	"curbly/internal/service"
	"curbly/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nullGeocoder struct{}

func (nullGeocoder) Geocode(ctx context.Context, address string) (*domain.GeocodeResult, error) {
	return &domain.GeocodeResult{FullAddress: address, Coordinates: models.LatLng{Lat: 39.78, Lng: -89.65}}, nil
}

func newTestServer(t *testing.T, cfg config.APIConfig) (*HTTPServer, *store.Memory) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	mem := store.NewMemory()
	queue := service.NewQueueService(mem, &logger)
	jobs := service.NewJobService(mem, queue, nil, nil, nullGeocoder{}, nil, models.LatLng{Lat: 39.8, Lng: -89.6}, 0.01, &logger)
	cleanings := service.NewCleaningService(mem, nil, nil, &logger)
	reconcile := service.NewReconcileService(mem, service.SpaceMatcher{}, nil, &logger)
	srv := NewHTTPServer(cfg, jobs, queue, cleanings, reconcile, nil, nil, models.DefaultRadiusMiles, &logger)
	return srv, mem
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestJobEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{Port: 0})
	handler := srv.Handler()

	var created models.Job

	t.Run("Create", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/jobs", map[string]any{
			"host_id": "host-1",
			"address": "10 Elm St",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		decodeBody(t, rec, &created)
		assert.Equal(t, models.StatusOpen, created.Status)
		assert.NotEmpty(t, created.ID)
	})

	t.Run("CreateValidation", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/jobs", map[string]any{"host_id": "host-1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Get", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/jobs/"+created.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got models.Job
		decodeBody(t, rec, &got)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("GetMissing", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/jobs/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("AcceptStartComplete", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/jobs/"+created.ID+"/accept", map[string]any{
			"worker_id": "worker-1",
			"location":  map[string]float64{"lat": 39.75, "lng": -89.64},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, handler, http.MethodPost, "/api/v1/jobs/"+created.ID+"/start", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, handler, http.MethodPost, "/api/v1/jobs/"+created.ID+"/location", map[string]any{
			"location": map[string]float64{"lat": 39.78, "lng": -89.65},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, handler, http.MethodPost, "/api/v1/jobs/"+created.ID+"/complete", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ConflictMapsTo409", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/jobs/"+created.ID+"/start", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("UnknownAction", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/jobs/"+created.ID+"/bounce", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodDelete, "/api/v1/jobs", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestOpenJobsPartition(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{Port: 0})
	handler := srv.Handler()

	near := doJSON(t, handler, http.MethodPost, "/api/v1/jobs", map[string]any{
		"host_id": "host-1", "address": "near",
		"destination": map[string]float64{"lat": 39.79, "lng": -89.64},
	})
	require.Equal(t, http.StatusCreated, near.Code)
	far := doJSON(t, handler, http.MethodPost, "/api/v1/jobs", map[string]any{
		"host_id": "host-1", "address": "far",
		"destination": map[string]float64{"lat": 41.88, "lng": -87.63},
	})
	require.Equal(t, http.StatusCreated, far.Code)

	type partition struct {
		InRange    []models.Job `json:"in_range"`
		OutOfRange []models.Job `json:"out_of_range"`
	}

	t.Run("WithWorkerLocation", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/jobs/open?lat=39.7817&lng=-89.6501", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got partition
		decodeBody(t, rec, &got)
		require.Len(t, got.InRange, 1)
		require.Len(t, got.OutOfRange, 1)
		assert.Equal(t, "near", got.InRange[0].Address)
	})

	t.Run("WithoutLocationFailsOpen", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/jobs/open", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got partition
		decodeBody(t, rec, &got)
		assert.Len(t, got.InRange, 2)
		assert.Empty(t, got.OutOfRange)
	})

	t.Run("CustomRadius", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/jobs/open?lat=39.7817&lng=-89.6501&radius_miles=500", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got partition
		decodeBody(t, rec, &got)
		assert.Len(t, got.InRange, 2)
	})

	t.Run("BadCoordinates", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/jobs/open?lat=abc&lng=1", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWorkerQueueEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{Port: 0})
	handler := srv.Handler()

	var jobIDs []string
	for i := 0; i < 2; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/jobs", map[string]any{
			"host_id": "host-1", "address": fmt.Sprintf("%d Elm St", i+1),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		var job models.Job
		decodeBody(t, rec, &job)
		jobIDs = append(jobIDs, job.ID)

		rec = doJSON(t, handler, http.MethodPost, "/api/v1/jobs/"+job.ID+"/accept", map[string]any{
			"worker_id": "worker-1",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	t.Run("Queue", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/workers/worker-1/queue", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got struct {
			Jobs []models.Job `json:"jobs"`
		}
		decodeBody(t, rec, &got)
		require.Len(t, got.Jobs, 2)
		assert.Equal(t, jobIDs[0], got.Jobs[0].ID)
		assert.Equal(t, 1, got.Jobs[0].WorkerPriority)
		assert.Equal(t, 2, got.Jobs[1].WorkerPriority)
	})

	t.Run("Current", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/workers/worker-1/current", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got struct {
			Job *models.Job `json:"job"`
		}
		decodeBody(t, rec, &got)
		require.NotNil(t, got.Job)
		assert.Equal(t, jobIDs[0], got.Job.ID)
	})

	t.Run("UnknownView", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/workers/worker-1/history", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCleaningEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{Port: 0})
	handler := srv.Handler()

	var created models.CleaningJob
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/cleanings", map[string]any{
		"host_id": "host-1",
		"address": "77 Shore Dr",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	decodeBody(t, rec, &created)

	var bid models.CleaningBid
	t.Run("PlaceBid", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/cleanings/"+created.ID+"/bids", map[string]any{
			"cleaner_id":   "cleaner-1",
			"cleaner_name": "Ann Lee",
			"amount":       80,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		decodeBody(t, rec, &bid)
		assert.NotEmpty(t, bid.ID)
	})

	t.Run("AcceptBid", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/cleanings/"+created.ID+"/bids/"+bid.ID+"/accept", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, handler, http.MethodGet, "/api/v1/cleanings/"+created.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got models.CleaningJob
		decodeBody(t, rec, &got)
		assert.Equal(t, models.StatusAccepted, got.Status)
		assert.Equal(t, "cleaner-1", got.AssignedCleanerID)
	})

	t.Run("Lifecycle", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/cleanings/"+created.ID+"/start", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = doJSON(t, handler, http.MethodPost, "/api/v1/cleanings/"+created.ID+"/complete", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = doJSON(t, handler, http.MethodPost, "/api/v1/cleanings/"+created.ID+"/cancel", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestTeamEndpoints(t *testing.T) {
	srv, mem := newTestServer(t, config.APIConfig{Port: 0})
	handler := srv.Handler()
	ctx := context.Background()

	memberFields, err := store.Encode(&models.TeamMember{
		ID:     "member-1",
		HostID: "host-1",
		Name:   "Ann Lee",
		Role:   models.RolePrimaryCleaner,
		Status: models.MemberActive,
	})
	require.NoError(t, err)
	require.NoError(t, mem.Write(ctx, models.CollectionTeamMembers, "member-1", memberFields))

	propFields, err := store.Encode(&models.Property{ID: "prop-1", HostID: "host-1", Address: "77 Shore Dr"})
	require.NoError(t, err)
	require.NoError(t, mem.Write(ctx, models.CollectionProperties, "prop-1", propFields))

	t.Run("ReconcileProperties", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPut, "/api/v1/team/member-1/properties", map[string]any{
			"previous": []string{},
			"next":     []string{"prop-1"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("RemoveMember", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodDelete, "/api/v1/team/member-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		docs, err := mem.Query(ctx, models.CollectionTeamMembers, nil)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("RemoveMissing", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodDelete, "/api/v1/team/member-1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestArchiveDisabled(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{Port: 0})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/admin/archive", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/admin/export", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
