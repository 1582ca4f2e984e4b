// Package jobstore implements the durable job queue over the relational
// jobs table: atomic single-writer claim, best-effort heartbeat, and stale
// reclaim. It is the lock the rest of the system relies on — no two workers
// ever observe the same running row.
package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clipforge/shorts-worker/internal/models"
	"github.com/clipforge/shorts-worker/internal/werror"
)

// Store is a Postgres-backed Job Store. redisClient is optional (nil
// disables stage-status publishing); it is never required for correctness.
type Store struct {
	db     *sql.DB
	redis  *redis.Client
	log    *zap.Logger
}

// New opens the database connection pool and verifies connectivity. redisClient
// may be nil.
func New(databaseURL string, redisClient *redis.Client, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("jobstore: open: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: ping: %w", err)
	}

	return &Store{db: db, redis: redisClient, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the jobs/uploads/users/clips tables if they do not
// already exist. Migrations proper are explicitly out of scope (SPEC_FULL.md
// §1); this mirrors the teacher's own practice of creating tables from Go at
// startup for a self-contained development/test database.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			plan TEXT NOT NULL DEFAULT 'free',
			credits INTEGER NOT NULL DEFAULT 60
		)`,
		`CREATE TABLE IF NOT EXISTS uploads (
			id SERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			original_filename TEXT NOT NULL,
			storage_key TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id SERIAL PRIMARY KEY,
			upload_id INTEGER NOT NULL REFERENCES uploads(id),
			status TEXT NOT NULL DEFAULT 'queued',
			error TEXT,
			aspect_ratio TEXT NOT NULL DEFAULT '9:16',
			captions_enabled BOOLEAN NOT NULL DEFAULT true,
			watermark_enabled BOOLEAN NOT NULL DEFAULT true,
			caption_style_json TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS clips (
			id SERIAL PRIMARY KEY,
			upload_id INTEGER NOT NULL REFERENCES uploads(id),
			job_id INTEGER NOT NULL REFERENCES jobs(id),
			storage_key TEXT UNIQUE NOT NULL,
			start_time DOUBLE PRECISION NOT NULL,
			end_time DOUBLE PRECISION NOT NULL,
			duration DOUBLE PRECISION NOT NULL,
			title TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_updated_at ON jobs(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_clips_job_id ON clips(job_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("jobstore: schema: %w", err)
		}
	}
	return nil
}

// ClaimNext atomically transitions the oldest queued job to running and
// returns its id, or 0 if no queued job was available. FIFO by id, per
// §4.1. Uses the single UPDATE...RETURNING form; Postgres always supports
// RETURNING so the select-then-conditional-update fallback described in the
// spec is dead code on this driver and intentionally omitted here in favor
// of the primary path, matching what the driver actually supports.
func (s *Store) ClaimNext(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'running', updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'queued'
			ORDER BY id ASC
			LIMIT 1
		)
		AND status = 'queued'
		RETURNING id
	`).Scan(&id)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, werror.Wrap(werror.DBFailure, "claim", err, "claiming next job")
	}
	return id, nil
}

// Heartbeat bumps updated_at for the claimed job. Failure is logged and
// swallowed per §7 — the caller retries on the next tick.
func (s *Store) Heartbeat(ctx context.Context, jobID int64) {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET updated_at = now() WHERE id = $1`, jobID)
	if err != nil {
		s.log.Warn("heartbeat failed, will retry", zap.Int64("job_id", jobID), zap.Error(err))
		return
	}
	s.publishStage(ctx, jobID, "heartbeat")
}

// SetStatus records the job's terminal or intermediate status and optional
// error text, and best-effort publishes the transition to Redis.
func (s *Store) SetStatus(ctx context.Context, jobID int64, status string, errText *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, error = $2, updated_at = now() WHERE id = $3
	`, status, errText, jobID)
	if err != nil {
		return werror.Wrap(werror.DBFailure, "setStatus", err, "updating job status")
	}
	s.publishStage(ctx, jobID, status)
	return nil
}

// ReclaimStale requeues any running job whose heartbeat lapsed beyond
// olderThan, tagging it with error='reclaimed'. Failure is returned as a
// DBFailure; the serve loop logs it and tries again on its next tick.
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'queued', error = 'reclaimed'
		WHERE status = 'running' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, werror.Wrap(werror.DBFailure, "reclaimStale", err, "reclaiming stale jobs")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LoadJobWithUpload fetches the claimed job alongside its parent upload and
// owning user.
func (s *Store) LoadJobWithUpload(ctx context.Context, jobID int64) (models.JobWithUpload, error) {
	var out models.JobWithUpload
	row := s.db.QueryRowContext(ctx, `
		SELECT
			j.id, j.upload_id, j.status, j.error, j.aspect_ratio,
			j.captions_enabled, j.watermark_enabled, j.caption_style_json,
			j.created_at, j.updated_at,
			u.id, u.user_id, u.original_filename, u.storage_key, u.created_at,
			usr.id, usr.plan, usr.credits
		FROM jobs j
		JOIN uploads u ON u.id = j.upload_id
		JOIN users usr ON usr.id = u.user_id
		WHERE j.id = $1
	`, jobID)

	err := row.Scan(
		&out.Job.ID, &out.Job.UploadID, &out.Job.Status, &out.Job.Error, &out.Job.AspectRatio,
		&out.Job.CaptionsEnabled, &out.Job.WatermarkEnabled, &out.Job.CaptionStyleJSON,
		&out.Job.CreatedAt, &out.Job.UpdatedAt,
		&out.Upload.ID, &out.Upload.UserID, &out.Upload.OriginalFilename, &out.Upload.StorageKey, &out.Upload.CreatedAt,
		&out.User.ID, &out.User.Plan, &out.User.Credits,
	)
	if err == sql.ErrNoRows {
		return out, werror.New(werror.DBFailure, "load", fmt.Sprintf("job %d not found", jobID))
	}
	if err != nil {
		return out, werror.Wrap(werror.DBFailure, "load", err, "loading job")
	}
	return out, nil
}

// DB exposes the underlying pool for the billing package's transactional
// debit/refund, which must share the Store's connection so both write
// through the same driver configuration.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) publishStage(ctx context.Context, jobID int64, status string) {
	if s.redis == nil {
		return
	}
	channel := fmt.Sprintf("clipworker:jobs:%d:events", jobID)
	if err := s.redis.Publish(ctx, channel, status).Err(); err != nil {
		s.log.Debug("stage-status publish failed", zap.Int64("job_id", jobID), zap.Error(err))
	}
}
