package storage

import (
	"context"
	"fmt"

	"github.com/car-scanner/internal/models"
)

// HistoryRepository appends price observations to ClickHouse and serves
// trend queries over them. The whole store is optional; callers hold a nil
// repository when ClickHouse is disabled.
type HistoryRepository struct {
	db *ClickHouseDB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *ClickHouseDB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// EnsureSchema creates the price history table if it does not exist
func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS price_history (
			observed_at DateTime,
			platform String,
			region String,
			kind String,
			make String,
			model String,
			year UInt16,
			price Float64,
			currency String,
			sold Bool,
			mileage UInt32,
			url String
		) ENGINE = MergeTree()
		ORDER BY (platform, make, model, observed_at)
	`

	if err := r.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create price_history table: %w", err)
	}

	return nil
}

// Record appends a batch of price observations
func (r *HistoryRepository) Record(ctx context.Context, observations []*models.PriceObservation) error {
	if len(observations) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO price_history (
			observed_at, platform, region, kind, make, model, year,
			price, currency, sold, mileage, url
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, o := range observations {
		err := batch.Append(
			o.ObservedAt,
			o.Platform,
			o.Region,
			o.Kind,
			o.Make,
			o.Model,
			o.Year,
			o.Price,
			o.Currency,
			o.Sold,
			o.Mileage,
			o.URL,
		)
		if err != nil {
			return fmt.Errorf("failed to append observation to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send observation batch: %w", err)
	}

	return nil
}

// Trend aggregates monthly price statistics for a make/model over the
// trailing window
func (r *HistoryRepository) Trend(ctx context.Context, make, model string, months int) ([]*models.TrendPoint, error) {
	query := `
		SELECT toStartOfMonth(observed_at) AS month,
			   avg(price) AS avg_price,
			   min(price) AS min_price,
			   max(price) AS max_price,
			   count() AS observations
		FROM price_history
		WHERE make = ? AND model = ? AND price > 0
		  AND observed_at >= subtractMonths(now(), ?)
		GROUP BY month
		ORDER BY month
	`

	rows, err := r.db.Conn().Query(ctx, query, make, model, months)
	if err != nil {
		return nil, fmt.Errorf("failed to query price trend: %w", err)
	}
	defer rows.Close()

	var points []*models.TrendPoint
	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.Month, &p.AvgPrice, &p.MinPrice, &p.MaxPrice, &p.Count); err != nil {
			return nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trend points: %w", err)
	}

	return points, nil
}
