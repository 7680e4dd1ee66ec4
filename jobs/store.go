package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	syncengine "github.com/salla-bridge/salla-bridge/internal/sync"
)

// Sync job lifecycle states.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// ErrJobNotFound indicates no job row exists for the id.
var ErrJobNotFound = errors.New("jobs: job not found")

// SyncJob is one queued background sync run and its outcome.
type SyncJob struct {
	ID           uuid.UUID         `json:"id"`
	TaskType     string            `json:"task_type"`
	Domain       syncengine.Domain `json:"domain"`
	Status       string            `json:"status"`
	Counts       syncengine.Counts `json:"counts"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

// JobStore persists sync job rows.
type JobStore interface {
	Create(ctx context.Context, job SyncJob) error
	Get(ctx context.Context, id uuid.UUID) (SyncJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	// Finish records the terminal state together with the run counts.
	Finish(ctx context.Context, id uuid.UUID, status string, counts syncengine.Counts, errorMessage string) error
}

type pgJobStore struct {
	db *pgxpool.Pool
}

// NewJobStore constructs the Postgres job store.
func NewJobStore(db *pgxpool.Pool) JobStore {
	return &pgJobStore{db: db}
}

func (s *pgJobStore) Create(ctx context.Context, job SyncJob) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO sync_jobs (id, task_type, domain, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.TaskType, job.Domain, job.Status, job.CreatedAt)
	return err
}

func (s *pgJobStore) Get(ctx context.Context, id uuid.UUID) (SyncJob, error) {
	var (
		job    SyncJob
		domain string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, task_type, domain, status,
		        created_count, updated_count, linked_count, updated_prices_count, failed_count,
		        COALESCE(error_message, ''), created_at, started_at, finished_at
		 FROM sync_jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.TaskType, &domain, &job.Status,
		&job.Counts.Created, &job.Counts.Updated, &job.Counts.Linked, &job.Counts.UpdatedPrices, &job.Counts.Failed,
		&job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SyncJob{}, ErrJobNotFound
	}
	if err != nil {
		return SyncJob{}, err
	}
	job.Domain, err = syncengine.ParseDomain(domain)
	if err != nil {
		return SyncJob{}, fmt.Errorf("jobs: job %s: %w", id, err)
	}
	return job, nil
}

func (s *pgJobStore) MarkRunning(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sync_jobs SET status = $1, started_at = $2 WHERE id = $3`,
		JobStatusRunning, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *pgJobStore) Finish(ctx context.Context, id uuid.UUID, status string, counts syncengine.Counts, errorMessage string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sync_jobs
		 SET status = $1,
		     created_count = $2, updated_count = $3, linked_count = $4,
		     updated_prices_count = $5, failed_count = $6,
		     error_message = NULLIF($7, ''), finished_at = $8
		 WHERE id = $9`,
		status, counts.Created, counts.Updated, counts.Linked,
		counts.UpdatedPrices, counts.Failed, errorMessage, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
