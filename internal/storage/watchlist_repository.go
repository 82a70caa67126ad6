package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/car-scanner/internal/models"
	"github.com/jackc/pgx/v5"
)

// WatchListRepository handles saved-search persistence for the rescan
// scheduler
type WatchListRepository struct {
	db *PostgresDB
}

// NewWatchListRepository creates a new watch list repository
func NewWatchListRepository(db *PostgresDB) *WatchListRepository {
	return &WatchListRepository{db: db}
}

// Create inserts a watch entry and fills in its generated ID
func (r *WatchListRepository) Create(ctx context.Context, entry *models.WatchEntry) error {
	query := `
		INSERT INTO watch_list (make, model, year_from, year_to, platforms, interval_hours, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	err := r.db.Pool().QueryRow(ctx, query,
		entry.Make,
		entry.Model,
		entry.YearFrom,
		entry.YearTo,
		entry.Platforms,
		entry.IntervalHours,
		entry.IsActive,
		entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to create watch entry: %w", err)
	}

	return nil
}

// GetByID retrieves a watch entry by ID. A missing entry is (nil, nil).
func (r *WatchListRepository) GetByID(ctx context.Context, id int) (*models.WatchEntry, error) {
	query := `
		SELECT id, make, model, year_from, year_to, platforms, interval_hours,
			   is_active, last_run_at, created_at
		FROM watch_list
		WHERE id = $1
	`

	var entry models.WatchEntry
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&entry.ID,
		&entry.Make,
		&entry.Model,
		&entry.YearFrom,
		&entry.YearTo,
		&entry.Platforms,
		&entry.IntervalHours,
		&entry.IsActive,
		&entry.LastRunAt,
		&entry.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get watch entry: %w", err)
	}

	return &entry, nil
}

// List retrieves all watch entries, newest first
func (r *WatchListRepository) List(ctx context.Context) ([]*models.WatchEntry, error) {
	query := `
		SELECT id, make, model, year_from, year_to, platforms, interval_hours,
			   is_active, last_run_at, created_at
		FROM watch_list
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list watch entries: %w", err)
	}
	defer rows.Close()

	return scanWatchRows(rows)
}

// ListActive retrieves entries the scheduler should consider
func (r *WatchListRepository) ListActive(ctx context.Context) ([]*models.WatchEntry, error) {
	query := `
		SELECT id, make, model, year_from, year_to, platforms, interval_hours,
			   is_active, last_run_at, created_at
		FROM watch_list
		WHERE is_active = true
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active watch entries: %w", err)
	}
	defer rows.Close()

	return scanWatchRows(rows)
}

// Delete removes a watch entry
func (r *WatchListRepository) Delete(ctx context.Context, id int) error {
	query := `DELETE FROM watch_list WHERE id = $1`

	// Deleting an absent entry is a no-op, not an error.
	if _, err := r.db.Pool().Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete watch entry: %w", err)
	}

	return nil
}

// MarkRun stamps the time an entry's rescan was last submitted
func (r *WatchListRepository) MarkRun(ctx context.Context, id int, at time.Time) error {
	query := `
		UPDATE watch_list
		SET last_run_at = $2
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark watch entry run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("watch entry not found: %d", id)
	}

	return nil
}

// scanWatchRows drains a watch entry result set
func scanWatchRows(rows pgx.Rows) ([]*models.WatchEntry, error) {
	var entries []*models.WatchEntry
	for rows.Next() {
		var entry models.WatchEntry
		err := rows.Scan(
			&entry.ID,
			&entry.Make,
			&entry.Model,
			&entry.YearFrom,
			&entry.YearTo,
			&entry.Platforms,
			&entry.IntervalHours,
			&entry.IsActive,
			&entry.LastRunAt,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watch entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watch entries: %w", err)
	}

	return entries, nil
}
