// Package worker moves terminal jobs into the reporting surfaces: the
// sqlite archive and the optional Google Sheets mirror. Tasks ride a redis
// list when redis is configured so they survive restarts; otherwise an
// in-memory channel carries them.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"curbly/internal/domain"
	"curbly/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskArchive = "archive"
	TaskSheets  = "sheets"
)

// SheetsWriter is the slice of the sheets mirror the worker needs.
type SheetsWriter interface {
	UpsertJob(ctx context.Context, job *models.Job) error
}

// SyncTask is one unit of background work.
type SyncTask struct {
	Type      string      `json:"type"`
	Job       *models.Job `json:"job"`
	Attempts  int         `json:"attempts"`
	CreatedAt time.Time   `json:"created_at"`
}

type SyncWorker struct {
	archive       domain.Archiver
	sheets        SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger
}

// NewSyncWorker builds a worker with sane defaults. archive and sheets may
// each be nil; tasks for a missing target are dropped with a log line.
func NewSyncWorker(archive domain.Archiver, sheets SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SyncWorker {
	return &SyncWorker{
		archive:       archive,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan SyncTask, models.SyncQueueSize),
		redisQueueKey: "curbly:sync:queue",
		deadLetterKey: "curbly:sync:deadletter",
		pollInterval:  2 * time.Second,
		logger:        logger,
	}
}

// EnqueueJobSync schedules a sync task via redis when available, the
// in-memory queue otherwise.
func (w *SyncWorker) EnqueueJobSync(ctx context.Context, taskType string, job *models.Job) error {
	if taskType != TaskArchive && taskType != TaskSheets {
		return errors.New("unknown sync task type: " + taskType)
	}
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}

	task := SyncTask{Type: taskType, Job: job, CreatedAt: time.Now()}

	if w.redis != nil {
		payload, err := json.Marshal(task)
		if err != nil {
			return err
		}
		if err := w.redis.LPush(ctx, w.redisQueueKey, payload).Err(); err == nil {
			return nil
		}
		// Fall through to memory when redis rejects the push.
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return errors.New("sync queue is full")
	}
}

// Start consumes tasks until the context is cancelled.
func (w *SyncWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.queue:
			w.process(ctx, task)
		case <-ticker.C:
			w.drainRedis(ctx)
		}
	}
}

func (w *SyncWorker) drainRedis(ctx context.Context) {
	if w.redis == nil {
		return
	}
	for {
		payload, err := w.redis.RPop(ctx, w.redisQueueKey).Result()
		if err == redis.Nil {
			return
		}
		if err != nil {
			w.logger.Warn().Err(err).Msg("sync queue pop failed")
			return
		}

		var task SyncTask
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			w.logger.Error().Err(err).Msg("discarding corrupt sync task")
			continue
		}
		w.process(ctx, task)
	}
}

func (w *SyncWorker) process(ctx context.Context, task SyncTask) {
	err := w.apply(ctx, task)
	if err == nil {
		return
	}

	task.Attempts++
	if task.Attempts >= w.retryPolicy.MaxRetries {
		w.logger.Error().Err(err).Str("type", task.Type).Str("job_id", task.Job.ID).Int("attempts", task.Attempts).Msg("sync task exhausted retries")
		w.deadLetter(ctx, task)
		return
	}

	delay := w.retryPolicy.NextDelay(task.Attempts)
	w.logger.Warn().Err(err).Str("type", task.Type).Str("job_id", task.Job.ID).Dur("retry_in", delay).Msg("sync task failed, will retry")

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			select {
			case w.queue <- task:
			default:
				w.deadLetter(ctx, task)
			}
		}
	}()
}

func (w *SyncWorker) apply(ctx context.Context, task SyncTask) error {
	switch task.Type {
	case TaskArchive:
		if w.archive == nil {
			w.logger.Debug().Str("job_id", task.Job.ID).Msg("archive disabled, dropping task")
			return nil
		}
		return w.archive.ArchiveJob(ctx, task.Job)
	case TaskSheets:
		if w.sheets == nil {
			return nil
		}
		return w.sheets.UpsertJob(ctx, task.Job)
	default:
		return errors.New("unknown sync task type: " + task.Type)
	}
}

func (w *SyncWorker) deadLetter(ctx context.Context, task SyncTask) {
	if w.redis == nil {
		return
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, payload).Err(); err != nil {
		w.logger.Error().Err(err).Msg("dead letter push failed")
	}
}
