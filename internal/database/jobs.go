package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

var ErrJobNotFound = errors.New("job not found")

// ScrapeJob is a queued API-side scrape of one product URL.
type ScrapeJob struct {
	ID          string          `json:"id"`
	ProductURL  string          `json:"product_url"`
	Config      json.RawMessage `json:"config"`
	Status      string          `json:"status"`
	RunID       *string         `json:"run_id,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// JobRepository persists scrape jobs for the background worker.
type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, productURL string, config json.RawMessage) (*ScrapeJob, error) {
	job := &ScrapeJob{
		ID:         uuid.New().String(),
		ProductURL: productURL,
		Config:     config,
		Status:     JobStatusPending,
		CreatedAt:  time.Now(),
	}

	query := `
		INSERT INTO scrape_job (id, product_url, config, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.ProductURL, job.Config, job.Status, job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return job, nil
}

func (r *JobRepository) Get(ctx context.Context, jobID string) (*ScrapeJob, error) {
	query := `
		SELECT id, product_url, config, status, run_id, error,
		       created_at, started_at, completed_at
		FROM scrape_job
		WHERE id = $1`

	job := &ScrapeJob{}
	err := r.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &job.ProductURL, &job.Config, &job.Status, &job.RunID, &job.Error,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

func (r *JobRepository) List(ctx context.Context, limit int) ([]*ScrapeJob, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, product_url, config, status, run_id, error,
		       created_at, started_at, completed_at
		FROM scrape_job
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ScrapeJob
	for rows.Next() {
		job := &ScrapeJob{}
		err := rows.Scan(
			&job.ID, &job.ProductURL, &job.Config, &job.Status, &job.RunID, &job.Error,
			&job.CreatedAt, &job.StartedAt, &job.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// ClaimNext atomically claims the oldest pending job and flips it to
// running. Skip-locked keeps concurrent workers off the same row.
func (r *JobRepository) ClaimNext(ctx context.Context) (*ScrapeJob, error) {
	job := &ScrapeJob{}

	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		selectQuery := `
			SELECT id, product_url, config, created_at
			FROM scrape_job
			WHERE status = $1
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED`

		err := tx.QueryRow(ctx, selectQuery, JobStatusPending).Scan(
			&job.ID, &job.ProductURL, &job.Config, &job.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to select pending job: %w", err)
		}

		now := time.Now()
		job.Status = JobStatusRunning
		job.StartedAt = &now

		_, err = tx.Exec(ctx,
			`UPDATE scrape_job SET status = $1, started_at = $2 WHERE id = $3`,
			job.Status, now, job.ID)
		if err != nil {
			return fmt.Errorf("failed to mark job running: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, jobID, runID string) error {
	query := `
		UPDATE scrape_job
		SET status = $1, run_id = $2, completed_at = $3
		WHERE id = $4`

	_, err := r.db.Exec(ctx, query, JobStatusCompleted, runID, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, jobID string, jobErr error) error {
	query := `
		UPDATE scrape_job
		SET status = $1, error = $2, completed_at = $3
		WHERE id = $4`

	_, err := r.db.Exec(ctx, query, JobStatusFailed, jobErr.Error(), time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}
