package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"curbly/internal/api"
	"curbly/internal/archive"
	"curbly/internal/config"
	"curbly/internal/domain"
	"curbly/internal/events"
	"curbly/internal/export"
	"curbly/internal/geocode"
	"curbly/internal/google"
	"curbly/internal/logging"
	"curbly/internal/metrics"
	"curbly/internal/models"
	"curbly/internal/notify"
	"curbly/internal/service"
	"curbly/internal/store"
	"curbly/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, docs := initDocumentStore(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	if err := seedProperties(ctx, cfg, docs, &logger); err != nil {
		return err
	}

	var archiveDB *archive.DB
	var archiver domain.Archiver
	if cfg.Archive.Enabled {
		archiveDB, err = archive.New(cfg.Archive.Path)
		if err != nil {
			logger.Error().Err(err).Str("archive_path", cfg.Archive.Path).Msg("init archive")
			return err
		}
		defer archiveDB.Close()
		archiver = archiveDB
	}

	sheetsService := initGoogleSheets(ctx, cfg, &logger)

	var syncWorker *worker.SyncWorker
	var syncEnqueuer domain.SyncWorker
	if archiver != nil || sheetsService != nil {
		retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		var sheets worker.SheetsWriter
		if sheetsService != nil {
			sheets = sheetsService
		}
		syncWorker = worker.NewSyncWorker(archiver, sheets, redisClient, retryPolicy, &logger)
		syncEnqueuer = syncWorker
		go syncWorker.Start(ctx)
	}

	eventBus := events.NewEventBus()
	subscribeAuditLog(eventBus, &logger)

	notifier := initNotifier(cfg, docs, &logger)
	geocoder := geocode.NewClient(cfg.Geocoder, &logger)

	queueService := service.NewQueueService(docs, &logger)
	jobService := service.NewJobService(
		docs, queueService, eventBus, notifier, geocoder, syncEnqueuer,
		models.LatLng{Lat: cfg.Geocoder.DefaultLat, Lng: cfg.Geocoder.DefaultLng},
		cfg.Geocoder.JitterDegrees,
		&logger,
	)
	cleaningService := service.NewCleaningService(docs, eventBus, notifier, &logger)
	reconcileService := service.NewReconcileService(docs, service.SpaceMatcher{}, eventBus, &logger)

	watcher := service.NewQueueWatcher(docs, queueService, &logger)
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("queue watcher stopped")
		}
	}()

	var exporter *export.Exporter
	if archiver != nil {
		exporter = export.New(archiver, cfg.Exports.Path)
	}

	startMetrics(ctx, cfg, &logger)

	radius := cfg.Dispatch.RadiusMiles
	if radius <= 0 {
		radius = models.DefaultRadiusMiles
	}

	if !cfg.API.Enabled {
		logger.Info().Msg("API disabled, running background workers only")
		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")
		return nil
	}

	httpServer := api.NewHTTPServer(cfg.API, jobService, queueService, cleaningService, reconcileService, archiver, exporter, radius, &logger)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDocumentStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.DocumentStore) {
	if cfg.Store.Backend != "redis" || cfg.Redis.Address == "" {
		logger.Info().Msg("using in-memory document store")
		return nil, store.NewMemory()
	}

	redisClient := store.NewRedisClient(cfg.Redis)
	if err := store.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, failover will serve from memory")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	primary := store.NewRedis(redisClient)
	fallback := store.NewMemory()
	return redisClient, store.NewFailover(primary, fallback, logger)
}

// seedProperties loads the host property roster from a YAML file into the
// document store so assignment sweeps have addresses to match against.
func seedProperties(ctx context.Context, cfg *config.Config, docs domain.DocumentStore, logger *zerolog.Logger) error {
	path := os.Getenv("PROPERTIES_PATH")
	if path == "" {
		path = cfg.PropertiesFile
	}
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("properties_path", path).Msg("read properties")
		return err
	}

	var seed struct {
		Properties []models.Property `yaml:"properties"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		logger.Error().Err(err).Str("properties_path", path).Msg("parse properties")
		return err
	}

	for _, p := range seed.Properties {
		fields, err := store.Encode(p)
		if err != nil {
			return err
		}
		if err := docs.Write(ctx, models.CollectionProperties, p.ID, fields); err != nil {
			return err
		}
	}

	logger.Info().Int("count", len(seed.Properties)).Msg("properties seeded")
	return nil
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.JobsSpreadsheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.JobsSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func initNotifier(cfg *config.Config, docs domain.DocumentStore, logger *zerolog.Logger) domain.Notifier {
	if cfg.Notify.Backend == "telegram" && cfg.Notify.BotToken != "" {
		n, err := notify.NewTelegramNotifier(cfg.Notify, docs, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram notifier init failed, falling back to log notifier")
			return notify.NewLogNotifier(logger)
		}
		return n
	}
	return notify.NewLogNotifier(logger)
}

// subscribeAuditLog gives the operator a single trail of every lifecycle
// event for debugging dispatch decisions.
func subscribeAuditLog(bus *events.EventBus, logger *zerolog.Logger) {
	handler := func(ev *events.Event) error {
		var payload events.JobEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.JobID == "" {
			logger.Info().Str("event", ev.Type).RawJSON("payload", ev.Payload).Msg("event")
			return nil
		}
		logger.Info().
			Str("event", ev.Type).
			Str("job_id", payload.JobID).
			Str("worker_id", payload.WorkerID).
			Str("status", payload.Status).
			Msg("event")
		return nil
	}

	for _, eventType := range []string{
		events.EventJobCreated, events.EventJobApproved, events.EventJobAccepted,
		events.EventJobStarted, events.EventJobCompleted, events.EventJobCancelled,
		events.EventJobReturned, events.EventBidPlaced, events.EventBidAccepted,
		events.EventCleaningStarted, events.EventCleaningDone, events.EventTeamReconciled,
	} {
		bus.Subscribe(eventType, handler)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
