package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/car-scanner/internal/models"
	"github.com/jackc/pgx/v5"
)

// PlatformRepository handles platform rows. The table is seeded at startup
// and read-mostly afterward.
type PlatformRepository struct {
	db *PostgresDB
}

// NewPlatformRepository creates a new platform repository
func NewPlatformRepository(db *PostgresDB) *PlatformRepository {
	return &PlatformRepository{db: db}
}

// defaultPlatforms are the sources seeded on first startup
var defaultPlatforms = []models.Platform{
	{Name: "bat", DisplayName: "Bring a Trailer", PlatformType: models.PlatformTypeAuction, Region: models.RegionUSA, BaseURL: "https://bringatrailer.com", IsActive: true},
	{Name: "carsandbids", DisplayName: "Cars & Bids", PlatformType: models.PlatformTypeAuction, Region: models.RegionUSA, BaseURL: "https://carsandbids.com", IsActive: true},
	{Name: "autotrader", DisplayName: "AutoTrader", PlatformType: models.PlatformTypeUsedCar, Region: models.RegionUSA, BaseURL: "https://www.autotrader.com", IsActive: true},
	{Name: "carscom", DisplayName: "Cars.com", PlatformType: models.PlatformTypeUsedCar, Region: models.RegionUSA, BaseURL: "https://www.cars.com", IsActive: true},
	{Name: "cargurus", DisplayName: "CarGurus", PlatformType: models.PlatformTypeUsedCar, Region: models.RegionUSA, BaseURL: "https://www.cargurus.com", IsActive: true},
	{Name: "mobilede", DisplayName: "Mobile.de", PlatformType: models.PlatformTypeUsedCar, Region: models.RegionGermany, BaseURL: "https://www.mobile.de", IsActive: true},
	{Name: "autoscout24", DisplayName: "AutoScout24", PlatformType: models.PlatformTypeUsedCar, Region: models.RegionGermany, BaseURL: "https://www.autoscout24.de", IsActive: true},
	{Name: "kleinanzeigen", DisplayName: "eBay Kleinanzeigen", PlatformType: models.PlatformTypeUsedCar, Region: models.RegionGermany, BaseURL: "https://www.kleinanzeigen.de", IsActive: true},
}

// Seed inserts the default platform rows, skipping any that already exist
func (r *PlatformRepository) Seed(ctx context.Context) error {
	query := `
		INSERT INTO platforms (name, display_name, platform_type, region, base_url, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO NOTHING
	`

	for _, p := range defaultPlatforms {
		_, err := r.db.Pool().Exec(ctx, query,
			p.Name,
			p.DisplayName,
			p.PlatformType,
			p.Region,
			p.BaseURL,
			p.IsActive,
		)
		if err != nil {
			return fmt.Errorf("failed to seed platform %s: %w", p.Name, err)
		}
	}

	return nil
}

// GetByName retrieves a platform by its registry key. An unseeded platform
// is (nil, nil), not an error, so callers can tell it apart from a storage
// failure.
func (r *PlatformRepository) GetByName(ctx context.Context, name string) (*models.Platform, error) {
	query := `
		SELECT id, name, display_name, platform_type, region, base_url, is_active
		FROM platforms
		WHERE name = $1
	`

	var p models.Platform
	err := r.db.Pool().QueryRow(ctx, query, name).Scan(
		&p.ID,
		&p.Name,
		&p.DisplayName,
		&p.PlatformType,
		&p.Region,
		&p.BaseURL,
		&p.IsActive,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get platform: %w", err)
	}

	return &p, nil
}

// List retrieves all platforms, optionally filtered by type
func (r *PlatformRepository) List(ctx context.Context, platformType string) ([]*models.Platform, error) {
	query := `
		SELECT id, name, display_name, platform_type, region, base_url, is_active
		FROM platforms
	`
	var args []interface{}
	if platformType != "" {
		query += ` WHERE platform_type = $1`
		args = append(args, platformType)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}
	defer rows.Close()

	var platforms []*models.Platform
	for rows.Next() {
		var p models.Platform
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.DisplayName,
			&p.PlatformType,
			&p.Region,
			&p.BaseURL,
			&p.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan platform: %w", err)
		}
		platforms = append(platforms, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platforms: %w", err)
	}

	return platforms, nil
}

// NamesByIDs resolves platform IDs to display names
func (r *PlatformRepository) NamesByIDs(ctx context.Context, ids []int) (map[int]string, error) {
	if len(ids) == 0 {
		return map[int]string{}, nil
	}

	query := `
		SELECT id, display_name
		FROM platforms
		WHERE id = ANY($1)
	`

	rows, err := r.db.Pool().Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve platform names: %w", err)
	}
	defer rows.Close()

	names := make(map[int]string, len(ids))
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan platform name: %w", err)
		}
		names[id] = name
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platform names: %w", err)
	}

	return names, nil
}
