package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"curbly/internal/config"
	"curbly/internal/domain"
	"curbly/internal/export"
	"curbly/internal/metrics"
	"curbly/internal/models"
	"curbly/internal/service"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the dispatch operations over a lightweight JSON API.
type HTTPServer struct {
	cfg       config.APIConfig
	jobs      domain.JobService
	queue     domain.QueueManager
	cleanings domain.CleaningService
	reconcile domain.Reconciler
	archive   domain.Archiver
	exporter  *export.Exporter
	radius    float64
	server    *http.Server
	auth      *HTTPAuth
	logger    *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	jobs domain.JobService,
	queue domain.QueueManager,
	cleanings domain.CleaningService,
	reconcile domain.Reconciler,
	archive domain.Archiver,
	exporter *export.Exporter,
	radiusMiles float64,
	logger *zerolog.Logger,
) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:       cfg,
		jobs:      jobs,
		queue:     queue,
		cleanings: cleanings,
		reconcile: reconcile,
		archive:   archive,
		exporter:  exporter,
		radius:    radiusMiles,
		logger:    logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/jobs/open", srv.handleOpenJobs)
	mux.HandleFunc("/api/v1/jobs/", srv.handleJob)
	mux.HandleFunc("/api/v1/jobs", srv.handleJobs)
	mux.HandleFunc("/api/v1/workers/", srv.handleWorkerQueue)
	mux.HandleFunc("/api/v1/cleanings/", srv.handleCleaning)
	mux.HandleFunc("/api/v1/cleanings", srv.handleCleanings)
	mux.HandleFunc("/api/v1/team/", srv.handleTeamMember)
	mux.HandleFunc("/api/v1/admin/archive", srv.handleArchive)
	mux.HandleFunc("/api/v1/admin/export", srv.handleExport)

	handler := loggingMiddleware(logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the wrapped mux for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("jobs")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type request struct {
		HostID        string                    `json:"host_id"`
		Address       string                    `json:"address"`
		Destination   *models.LatLng            `json:"destination,omitempty"`
		Notes         string                    `json:"notes,omitempty"`
		NeedsApproval bool                      `json:"needs_approval,omitempty"`
		IsRecurring   bool                      `json:"is_recurring,omitempty"`
		Schedule      *models.RecurringSchedule `json:"recurring_schedule,omitempty"`
	}
	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := s.jobs.CreateJob(r.Context(), domain.CreateJobInput{
		HostID:        body.HostID,
		Address:       body.Address,
		Destination:   body.Destination,
		Notes:         body.Notes,
		NeedsApproval: body.NeedsApproval,
		IsRecurring:   body.IsRecurring,
		Schedule:      body.Schedule,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// handleJob routes /api/v1/jobs/{id} and /api/v1/jobs/{id}/{action}.
func (s *HTTPServer) handleJob(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("job")
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	jobID, action, _ := strings.Cut(rest, "/")
	if jobID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		job, err := s.jobs.GetJob(r.Context(), jobID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type request struct {
		WorkerID string         `json:"worker_id,omitempty"`
		ActorID  string         `json:"actor_id,omitempty"`
		Reason   string         `json:"reason,omitempty"`
		Location *models.LatLng `json:"location,omitempty"`
	}
	var body request
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	var err error
	switch action {
	case "approve":
		err = s.jobs.ApproveJob(r.Context(), jobID)
	case "accept":
		loc := models.LatLng{}
		if body.Location != nil {
			loc = *body.Location
		}
		err = s.jobs.AcceptJob(r.Context(), jobID, body.WorkerID, loc)
	case "start":
		err = s.jobs.StartJob(r.Context(), jobID)
	case "complete":
		err = s.jobs.CompleteJob(r.Context(), jobID)
	case "cancel":
		err = s.jobs.CancelJob(r.Context(), jobID, body.ActorID, body.Reason)
	case "return":
		err = s.jobs.ReturnJobToQueue(r.Context(), jobID)
	case "location":
		if body.Location == nil {
			writeError(w, http.StatusBadRequest, "location is required")
			return
		}
		err = s.jobs.UpdateWorkerLocation(r.Context(), jobID, *body.Location)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleOpenJobs returns the open pool partitioned by the worker's radius.
// Without worker coordinates everything is in range.
func (s *HTTPServer) handleOpenJobs(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("open_jobs")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobs, err := s.jobs.OpenJobs(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var location *models.LatLng
	q := r.URL.Query()
	if q.Get("lat") != "" && q.Get("lng") != "" {
		var lat, lng float64
		if _, err := fmt.Sscanf(q.Get("lat"), "%f", &lat); err != nil {
			writeError(w, http.StatusBadRequest, "invalid lat")
			return
		}
		if _, err := fmt.Sscanf(q.Get("lng"), "%f", &lng); err != nil {
			writeError(w, http.StatusBadRequest, "invalid lng")
			return
		}
		location = &models.LatLng{Lat: lat, Lng: lng}
	}

	radius := s.radius
	if q.Get("radius_miles") != "" {
		if _, err := fmt.Sscanf(q.Get("radius_miles"), "%f", &radius); err != nil {
			writeError(w, http.StatusBadRequest, "invalid radius_miles")
			return
		}
	}

	part := service.PartitionByRadius(jobs, location, radius)
	writeJSON(w, http.StatusOK, map[string]any{
		"in_range":     part.InRange,
		"out_of_range": part.OutOfRange,
	})
}

// handleWorkerQueue routes /api/v1/workers/{id}/queue and .../current.
func (s *HTTPServer) handleWorkerQueue(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("worker_queue")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/workers/")
	workerID, view, _ := strings.Cut(rest, "/")
	if workerID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch view {
	case "queue":
		jobs, err := s.queue.WorkerQueue(r.Context(), workerID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	case "current":
		job, err := s.queue.CurrentJob(r.Context(), workerID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job": job})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleCleanings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cleanings")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body models.CleaningJob
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := s.cleanings.CreateCleaningJob(r.Context(), &body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// handleCleaning routes /api/v1/cleanings/{id}, .../bids,
// .../bids/{bidID}/accept and the status actions.
func (s *HTTPServer) handleCleaning(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cleaning")
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/cleanings/")
	jobID, action, _ := strings.Cut(rest, "/")
	if jobID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		job, err := s.cleanings.GetCleaningJob(r.Context(), jobID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if strings.HasPrefix(action, "bids/") {
		bidID, verb, _ := strings.Cut(strings.TrimPrefix(action, "bids/"), "/")
		if verb != "accept" || bidID == "" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if err := s.cleanings.AcceptBid(r.Context(), jobID, bidID); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	switch action {
	case "bids":
		var bid models.CleaningBid
		if err := json.NewDecoder(r.Body).Decode(&bid); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		placed, err := s.cleanings.PlaceBid(r.Context(), jobID, bid)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, placed)
	case "start":
		if err := s.cleanings.StartCleaningJob(r.Context(), jobID); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "complete":
		if err := s.cleanings.CompleteCleaningJob(r.Context(), jobID); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "cancel":
		type request struct {
			ActorID string `json:"actor_id"`
			Reason  string `json:"reason"`
		}
		var body request
		_ = json.NewDecoder(r.Body).Decode(&body)
		if err := s.cleanings.CancelCleaningJob(r.Context(), jobID, body.ActorID, body.Reason); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "unknown action")
	}
}

// handleTeamMember routes PUT /api/v1/team/{id}/properties and
// DELETE /api/v1/team/{id}.
func (s *HTTPServer) handleTeamMember(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("team")
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/team/")
	memberID, action, _ := strings.Cut(rest, "/")
	if memberID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case action == "properties" && r.Method == http.MethodPut:
		type request struct {
			Previous []string `json:"previous"`
			Next     []string `json:"next"`
		}
		var body request
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.reconcile.ReconcileAssignments(r.Context(), memberID, body.Previous, body.Next); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case action == "" && r.Method == http.MethodDelete:
		if err := s.reconcile.RemoveTeamMember(r.Context(), memberID); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleArchive(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("archive")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "archive is disabled")
		return
	}

	since := time.Now().AddDate(0, -1, 0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since; expected YYYY-MM-DD")
			return
		}
		since = parsed
	}

	jobs, err := s.archive.ListArchived(r.Context(), r.URL.Query().Get("status"), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := s.archive.CountByStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "counts": counts})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "export is disabled")
		return
	}

	since := time.Now().AddDate(0, -1, 0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since; expected YYYY-MM-DD")
			return
		}
		since = parsed
	}

	path, err := s.exporter.Export(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": path})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("http request")
	})
}
