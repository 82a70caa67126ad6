package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SearchCacheRepository maps search fingerprints to prior job IDs. The
// table is append-only: Store never upserts, and Lookup takes the newest
// unexpired row rather than assuming the key is unique.
type SearchCacheRepository struct {
	db *PostgresDB
}

// NewSearchCacheRepository creates a new search cache repository
func NewSearchCacheRepository(db *PostgresDB) *SearchCacheRepository {
	return &SearchCacheRepository{db: db}
}

// Lookup returns the job ID cached for a fingerprint, if an unexpired
// entry exists. A miss is (uuid.Nil, false, nil), not an error.
func (r *SearchCacheRepository) Lookup(ctx context.Context, fingerprint string) (uuid.UUID, bool, error) {
	query := `
		SELECT job_id
		FROM search_cache
		WHERE cache_key = $1 AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT 1
	`

	var jobID uuid.UUID
	err := r.db.Pool().QueryRow(ctx, query, fingerprint).Scan(&jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to look up search cache: %w", err)
	}

	return jobID, true, nil
}

// Store appends a cache entry pointing a fingerprint at a completed job
func (r *SearchCacheRepository) Store(ctx context.Context, fingerprint string, jobID uuid.UUID, ttl time.Duration) error {
	query := `
		INSERT INTO search_cache (cache_key, job_id, created_at, expires_at)
		VALUES ($1, $2, now(), now() + $3)
	`

	_, err := r.db.Pool().Exec(ctx, query, fingerprint, jobID, ttl)
	if err != nil {
		return fmt.Errorf("failed to store search cache entry: %w", err)
	}

	return nil
}

// PurgeExpired removes entries whose TTL has elapsed and returns how many
// rows were deleted
func (r *SearchCacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM search_cache WHERE expires_at <= now()`

	result, err := r.db.Pool().Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge search cache: %w", err)
	}

	return result.RowsAffected(), nil
}
