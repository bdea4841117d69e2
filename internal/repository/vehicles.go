package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dealerscan/internal/models"
)

const vehicleColumns = `id, tenant_id, identifier, stock_number, year, make, model, trim, color,
	price, mileage, url, image_url, image_urls, first_seen_at, last_seen_at, status,
	price_history, listing_date_confidence, listing_date_source, created_at, updated_at`

func scanVehicle(row pgx.Row) (*models.VehicleHistory, error) {
	var v models.VehicleHistory
	err := row.Scan(&v.ID, &v.TenantID, &v.Identifier, &v.StockNumber, &v.Year, &v.Make,
		&v.Model, &v.Trim, &v.Color, &v.Price, &v.Mileage, &v.URL, &v.ImageURL, &v.ImageURLs,
		&v.FirstSeenAt, &v.LastSeenAt, &v.Status, &v.PriceHistory,
		&v.ListingDateConfidence, &v.ListingDateSource, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func collectVehicles(rows pgx.Rows) ([]*models.VehicleHistory, error) {
	defer rows.Close()
	var out []*models.VehicleHistory
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListActiveVehicles returns the reconciliation working set: every
// active row the tenant has.
func (r *Repository) ListActiveVehicles(ctx context.Context, tenantID string) ([]*models.VehicleHistory, error) {
	rows, err := r.db.Query(ctx, `SELECT `+vehicleColumns+`
		FROM vehicle_history
		WHERE tenant_id = $1 AND status = 'active'`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectVehicles(rows)
}

func (r *Repository) InsertVehicle(ctx context.Context, v *models.VehicleHistory) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO vehicle_history (
			tenant_id, identifier, stock_number, year, make, model, trim, color,
			price, mileage, url, image_url, image_urls, first_seen_at, last_seen_at,
			status, price_history, listing_date_confidence, listing_date_source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at, updated_at`,
		v.TenantID, v.Identifier, v.StockNumber, v.Year, v.Make, v.Model, v.Trim, v.Color,
		v.Price, v.Mileage, v.URL, v.ImageURL, v.ImageURLs, v.FirstSeenAt, v.LastSeenAt,
		v.Status, v.PriceHistory, v.ListingDateConfidence, v.ListingDateSource,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert vehicle %s: %w", v.Identifier, err)
	}
	return nil
}

func (r *Repository) UpdateVehicle(ctx context.Context, v *models.VehicleHistory) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE vehicle_history SET
			identifier = $2, stock_number = $3, year = $4, make = $5, model = $6,
			trim = $7, color = $8, price = $9, mileage = $10, url = $11,
			image_url = $12, image_urls = $13, first_seen_at = $14, last_seen_at = $15,
			status = $16, price_history = $17, listing_date_confidence = $18,
			listing_date_source = $19, updated_at = NOW()
		WHERE id = $1`,
		v.ID, v.Identifier, v.StockNumber, v.Year, v.Make, v.Model, v.Trim, v.Color,
		v.Price, v.Mileage, v.URL, v.ImageURL, v.ImageURLs, v.FirstSeenAt, v.LastSeenAt,
		v.Status, v.PriceHistory, v.ListingDateConfidence, v.ListingDateSource)
	if err != nil {
		return fmt.Errorf("failed to update vehicle %s: %w", v.Identifier, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %d: %w", v.ID, ErrNotFound)
	}
	return nil
}

// ListVehicles is the inventory read API. An empty status means every
// lifecycle state.
func (r *Repository) ListVehicles(ctx context.Context, tenantID, status string) ([]*models.VehicleHistory, error) {
	q := `SELECT ` + vehicleColumns + ` FROM vehicle_history WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	q += ` ORDER BY last_seen_at DESC`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectVehicles(rows)
}

// GetVehicle returns the row for an identifier, preferring the active
// generation when a sold one with the same identifier exists.
func (r *Repository) GetVehicle(ctx context.Context, tenantID, identifier string) (*models.VehicleHistory, error) {
	v, err := scanVehicle(r.db.QueryRow(ctx, `SELECT `+vehicleColumns+`
		FROM vehicle_history
		WHERE tenant_id = $1 AND identifier = $2
		ORDER BY (status = 'active') DESC, last_seen_at DESC
		LIMIT 1`, tenantID, identifier))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("vehicle %s: %w", identifier, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVehiclesByDateSource returns rows whose listing date came from the
// given source, for provenance backfills.
func (r *Repository) ListVehiclesByDateSource(ctx context.Context, tenantID, source string) ([]*models.VehicleHistory, error) {
	rows, err := r.db.Query(ctx, `SELECT `+vehicleColumns+`
		FROM vehicle_history
		WHERE tenant_id = $1 AND listing_date_source = $2`, tenantID, source)
	if err != nil {
		return nil, err
	}
	return collectVehicles(rows)
}

// UpdateListingDate rewrites one row's resolved listing date and its
// provenance, leaving everything else untouched.
func (r *Repository) UpdateListingDate(ctx context.Context, id int64, firstSeen time.Time, confidence, source string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE vehicle_history SET
			first_seen_at = $2, listing_date_confidence = $3, listing_date_source = $4,
			updated_at = NOW()
		WHERE id = $1`, id, firstSeen, confidence, source)
	if err != nil {
		return fmt.Errorf("failed to update listing date for vehicle %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %d: %w", id, ErrNotFound)
	}
	return nil
}
