package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/car-scanner/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// JobRepository handles scrape job persistence
type JobRepository struct {
	db *PostgresDB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *PostgresDB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new scrape job record
func (r *JobRepository) Create(ctx context.Context, job *models.ScrapeJob) error {
	query := `
		INSERT INTO scrape_jobs (
			id, status, progress, total_results, platforms_requested,
			search_params, job_type, error_message, created_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		job.ID,
		job.Status,
		job.Progress,
		job.TotalResults,
		job.PlatformsRequested,
		job.SearchParams,
		job.JobType,
		job.ErrorMessage,
		job.CreatedAt,
		job.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create scrape job: %w", err)
	}

	return nil
}

// GetByID retrieves a scrape job by ID. A missing job is (nil, nil).
func (r *JobRepository) GetByID(ctx context.Context, jobID uuid.UUID) (*models.ScrapeJob, error) {
	query := `
		SELECT id, status, progress, total_results, platforms_requested,
			   search_params, job_type, error_message, created_at, completed_at
		FROM scrape_jobs
		WHERE id = $1
	`

	var job models.ScrapeJob
	var errorMsg *string
	var completedAt *time.Time

	err := r.db.Pool().QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.Status,
		&job.Progress,
		&job.TotalResults,
		&job.PlatformsRequested,
		&job.SearchParams,
		&job.JobType,
		&errorMsg,
		&job.CreatedAt,
		&completedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scrape job: %w", err)
	}

	job.ErrorMessage = errorMsg
	job.CompletedAt = completedAt

	return &job, nil
}

// MarkRunning transitions a job to running
func (r *JobRepository) MarkRunning(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE scrape_jobs
		SET status = $2
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("scrape job not found: %s", jobID)
	}

	return nil
}

// UpdateProgress advances job progress. The GREATEST guard keeps progress
// monotone even if updates arrive out of order.
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID uuid.UUID, progress int) error {
	query := `
		UPDATE scrape_jobs
		SET progress = GREATEST(progress, $2)
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, progress)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("scrape job not found: %s", jobID)
	}

	return nil
}

// Complete finalizes a job as completed with progress 100. COALESCE keeps
// the original completion timestamp if one was already stamped.
func (r *JobRepository) Complete(ctx context.Context, jobID uuid.UUID, totalResults int) error {
	query := `
		UPDATE scrape_jobs
		SET status = $2, progress = 100, total_results = $3,
			completed_at = COALESCE(completed_at, now())
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, models.JobStatusCompleted, totalResults)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("scrape job not found: %s", jobID)
	}

	return nil
}

// Fail finalizes a job as failed with the orchestration error message
func (r *JobRepository) Fail(ctx context.Context, jobID uuid.UUID, errorMessage string) error {
	query := `
		UPDATE scrape_jobs
		SET status = $2, error_message = $3,
			completed_at = COALESCE(completed_at, now())
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, models.JobStatusFailed, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("scrape job not found: %s", jobID)
	}

	return nil
}

// ListRecent retrieves the most recently created jobs
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*models.ScrapeJob, error) {
	query := `
		SELECT id, status, progress, total_results, platforms_requested,
			   search_params, job_type, error_message, created_at, completed_at
		FROM scrape_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scrape jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ScrapeJob
	for rows.Next() {
		var job models.ScrapeJob
		var errorMsg *string
		var completedAt *time.Time

		err := rows.Scan(
			&job.ID,
			&job.Status,
			&job.Progress,
			&job.TotalResults,
			&job.PlatformsRequested,
			&job.SearchParams,
			&job.JobType,
			&errorMsg,
			&job.CreatedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrape job: %w", err)
		}

		job.ErrorMessage = errorMsg
		job.CompletedAt = completedAt

		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scrape jobs: %w", err)
	}

	return jobs, nil
}
