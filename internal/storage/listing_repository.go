package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/car-scanner/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListingRepository handles auction and used-car listing persistence.
// Each platform step of a job inserts its page of listings atomically.
type ListingRepository struct {
	db *PostgresDB
}

// NewListingRepository creates a new listing repository
func NewListingRepository(db *PostgresDB) *ListingRepository {
	return &ListingRepository{db: db}
}

// InsertAuctionListings inserts a batch of auction listings in one transaction
func (r *ListingRepository) InsertAuctionListings(ctx context.Context, listings []*models.AuctionListing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	query := `
		INSERT INTO auction_listings (
			platform_id, job_id, year, make, model, starting_bid, sold_price,
			auction_days, bid_count, times_listed, description, url, image_url,
			auction_end_date, is_sold, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	now := time.Now()
	for _, l := range listings {
		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		_, err := tx.Exec(ctx, query,
			l.PlatformID,
			l.JobID,
			l.Year,
			l.Make,
			l.Model,
			l.StartingBid,
			l.SoldPrice,
			l.AuctionDays,
			l.BidCount,
			l.TimesListed,
			l.Description,
			l.URL,
			l.ImageURL,
			l.AuctionEndDate,
			l.IsSold,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert auction listing: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit auction listings: %w", err)
	}

	return nil
}

// InsertUsedCarListings inserts a batch of used-car listings in one transaction
func (r *ListingRepository) InsertUsedCarListings(ctx context.Context, listings []*models.UsedCarListing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	query := `
		INSERT INTO used_car_listings (
			platform_id, job_id, year, make, model, trim, list_price, mileage,
			days_on_market, dealer_name, location, description, url, image_url,
			listing_date, is_active, currency, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	now := time.Now()
	for _, l := range listings {
		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		_, err := tx.Exec(ctx, query,
			l.PlatformID,
			l.JobID,
			l.Year,
			l.Make,
			l.Model,
			l.Trim,
			l.ListPrice,
			l.Mileage,
			l.DaysOnMarket,
			l.DealerName,
			l.Location,
			l.Description,
			l.URL,
			l.ImageURL,
			l.ListingDate,
			l.IsActive,
			l.Currency,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert used car listing: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit used car listings: %w", err)
	}

	return nil
}

// GetAuctionByJobID retrieves all auction listings persisted by a job,
// most recently ended first. Listings without an end date sort last.
func (r *ListingRepository) GetAuctionByJobID(ctx context.Context, jobID uuid.UUID) ([]*models.AuctionListing, error) {
	query := `
		SELECT id, platform_id, job_id, year, make, model, starting_bid, sold_price,
			   auction_days, bid_count, times_listed, description, url, image_url,
			   auction_end_date, is_sold, created_at
		FROM auction_listings
		WHERE job_id = $1
		ORDER BY auction_end_date DESC NULLS LAST, id
	`

	rows, err := r.db.Pool().Query(ctx, query, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query auction listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.AuctionListing
	for rows.Next() {
		var l models.AuctionListing
		err := rows.Scan(
			&l.ID,
			&l.PlatformID,
			&l.JobID,
			&l.Year,
			&l.Make,
			&l.Model,
			&l.StartingBid,
			&l.SoldPrice,
			&l.AuctionDays,
			&l.BidCount,
			&l.TimesListed,
			&l.Description,
			&l.URL,
			&l.ImageURL,
			&l.AuctionEndDate,
			&l.IsSold,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction listing: %w", err)
		}
		listings = append(listings, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auction listings: %w", err)
	}

	return listings, nil
}

// GetUsedCarByJobID retrieves all used-car listings persisted by a job
func (r *ListingRepository) GetUsedCarByJobID(ctx context.Context, jobID uuid.UUID) ([]*models.UsedCarListing, error) {
	query := `
		SELECT id, platform_id, job_id, year, make, model, trim, list_price, mileage,
			   days_on_market, dealer_name, location, description, url, image_url,
			   listing_date, is_active, currency, created_at
		FROM used_car_listings
		WHERE job_id = $1
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query used car listings: %w", err)
	}
	defer rows.Close()

	return scanUsedCarRows(rows)
}

// GetUsedCarByCriteria retrieves used-car listings for comparison queries.
// Filters are optional; zero values are skipped.
func (r *ListingRepository) GetUsedCarByCriteria(ctx context.Context, platformIDs []int, make, model string, yearFrom, yearTo int) ([]*models.UsedCarListing, error) {
	query := `
		SELECT id, platform_id, job_id, year, make, model, trim, list_price, mileage,
			   days_on_market, dealer_name, location, description, url, image_url,
			   listing_date, is_active, currency, created_at
		FROM used_car_listings
		WHERE platform_id = ANY($1)
	`
	args := []interface{}{platformIDs}
	idx := 2

	if make != "" {
		query += fmt.Sprintf(" AND LOWER(make) = LOWER($%d)", idx)
		args = append(args, make)
		idx++
	}
	if model != "" {
		query += fmt.Sprintf(" AND LOWER(model) = LOWER($%d)", idx)
		args = append(args, model)
		idx++
	}
	if yearFrom != 0 {
		query += fmt.Sprintf(" AND year >= $%d", idx)
		args = append(args, yearFrom)
		idx++
	}
	if yearTo != 0 {
		query += fmt.Sprintf(" AND year <= $%d", idx)
		args = append(args, yearTo)
		idx++
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query used car listings: %w", err)
	}
	defer rows.Close()

	return scanUsedCarRows(rows)
}

// scanUsedCarRows drains a used-car result set
func scanUsedCarRows(rows pgx.Rows) ([]*models.UsedCarListing, error) {
	var listings []*models.UsedCarListing
	for rows.Next() {
		var l models.UsedCarListing
		err := rows.Scan(
			&l.ID,
			&l.PlatformID,
			&l.JobID,
			&l.Year,
			&l.Make,
			&l.Model,
			&l.Trim,
			&l.ListPrice,
			&l.Mileage,
			&l.DaysOnMarket,
			&l.DealerName,
			&l.Location,
			&l.Description,
			&l.URL,
			&l.ImageURL,
			&l.ListingDate,
			&l.IsActive,
			&l.Currency,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan used car listing: %w", err)
		}
		listings = append(listings, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating used car listings: %w", err)
	}

	return listings, nil
}
