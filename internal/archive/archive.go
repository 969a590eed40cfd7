// Package archive keeps a durable sqlite record of jobs that reached a
// terminal state. The live document store holds only current state; admin
// reporting and exports read from here.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"curbly/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	db *sql.DB
}

func New(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to archive database: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create archive tables: %w", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	query := `CREATE TABLE IF NOT EXISTS archived_jobs (
        id TEXT PRIMARY KEY,
        status TEXT NOT NULL,
        host_id TEXT NOT NULL,
        worker_id TEXT,
        address TEXT NOT NULL,
        notes TEXT,
        created_at DATETIME NOT NULL,
        accepted_at DATETIME,
        completed_at DATETIME,
        cancelled_at DATETIME,
        cancelled_by TEXT,
        cancellation_reason TEXT,
        archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_archived_jobs_status ON archived_jobs(status)`); err != nil {
		return err
	}
	return nil
}

// ArchiveJob upserts a terminal job row. The sync queue may replay a task,
// so the write must be idempotent.
func (a *DB) ArchiveJob(ctx context.Context, job *models.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("archive: job id is required")
	}

	_, err := a.db.ExecContext(ctx, `
        INSERT INTO archived_jobs
            (id, status, host_id, worker_id, address, notes, created_at,
             accepted_at, completed_at, cancelled_at, cancelled_by, cancellation_reason)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            completed_at = excluded.completed_at,
            cancelled_at = excluded.cancelled_at,
            cancelled_by = excluded.cancelled_by,
            cancellation_reason = excluded.cancellation_reason`,
		job.ID, job.Status, job.HostID, nullString(job.WorkerID), job.Address, nullString(job.Notes),
		job.CreatedAt, nullTime(job.AcceptedAt), nullTime(job.CompletedAt), nullTime(job.CancelledAt),
		nullString(job.CancelledBy), nullString(job.CancellationReason),
	)
	if err != nil {
		return fmt.Errorf("archive job %s: %w", job.ID, err)
	}
	return nil
}

// ListArchived returns archived jobs, optionally filtered by status, whose
// archival happened at or after since.
func (a *DB) ListArchived(ctx context.Context, status string, since time.Time) ([]*models.Job, error) {
	query := `SELECT id, status, host_id, worker_id, address, notes, created_at,
                     accepted_at, completed_at, cancelled_at, cancelled_by, cancellation_reason
              FROM archived_jobs WHERE archived_at >= ?`
	args := []any{since}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY archived_at DESC`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archived jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var (
			job				models.Job
			workerID, notes, by, reason	sql.NullString
			acceptedAt, completedAt, cancAt	sql.NullTime
		)
		err := rows.Scan(&job.ID, &job.Status, &job.HostID, &workerID, &job.Address, &notes,
			&job.CreatedAt, &acceptedAt, &completedAt, &cancAt, &by, &reason)
		if err != nil {
			return nil, err
		}
		job.WorkerID = workerID.String
		job.Notes = notes.String
		job.CancelledBy = by.String
		job.CancellationReason = reason.String
		if acceptedAt.Valid {
			t := acceptedAt.Time
			job.AcceptedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			job.CompletedAt = &t
		}
		if cancAt.Valid {
			t := cancAt.Time
			job.CancelledAt = &t
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// CountByStatus aggregates archived jobs per status.
func (a *DB) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM archived_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count archived jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (a *DB) Close() error {
	return a.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
