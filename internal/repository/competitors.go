package repository

import (
	"context"
	"fmt"

	"dealerscan/internal/models"
)

const competitorStatColumns = `vehicle_count, avg_price, min_price, max_price,
	total_inventory_value, avg_mileage, min_mileage, max_mileage, top_makes`

func (r *Repository) UpsertCompetitorSnapshot(ctx context.Context, snap *models.CompetitorSnapshot) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO competitor_snapshots (
			tenant_id, competitor_url, vehicle_count, avg_price, min_price, max_price,
			total_inventory_value, avg_mileage, min_mileage, max_mileage, top_makes, scanned_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, competitor_url) DO UPDATE SET
			vehicle_count = EXCLUDED.vehicle_count,
			avg_price = EXCLUDED.avg_price,
			min_price = EXCLUDED.min_price,
			max_price = EXCLUDED.max_price,
			total_inventory_value = EXCLUDED.total_inventory_value,
			avg_mileage = EXCLUDED.avg_mileage,
			min_mileage = EXCLUDED.min_mileage,
			max_mileage = EXCLUDED.max_mileage,
			top_makes = EXCLUDED.top_makes,
			scanned_at = EXCLUDED.scanned_at
		RETURNING id`,
		snap.TenantID, snap.CompetitorURL, snap.Count, snap.AvgPrice, snap.MinPrice,
		snap.MaxPrice, snap.TotalInventoryValue, snap.AvgMileage, snap.MinMileage,
		snap.MaxMileage, snap.TopMakes, snap.ScannedAt,
	).Scan(&snap.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert competitor snapshot %s: %w", snap.CompetitorURL, err)
	}
	return nil
}

func (r *Repository) InsertCompetitorScan(ctx context.Context, rec *models.CompetitorScanRecord) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO competitor_scan_history (
			tenant_id, competitor_url, vehicle_count, avg_price, min_price, max_price,
			total_inventory_value, avg_mileage, min_mileage, max_mileage, top_makes, scanned_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		rec.TenantID, rec.CompetitorURL, rec.Count, rec.AvgPrice, rec.MinPrice,
		rec.MaxPrice, rec.TotalInventoryValue, rec.AvgMileage, rec.MinMileage,
		rec.MaxMileage, rec.TopMakes, rec.ScannedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert competitor scan %s: %w", rec.CompetitorURL, err)
	}
	return nil
}

func (r *Repository) ListCompetitorSnapshots(ctx context.Context, tenantID string) ([]models.CompetitorSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, competitor_url, `+competitorStatColumns+`, scanned_at
		FROM competitor_snapshots
		WHERE tenant_id = $1
		ORDER BY scanned_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []models.CompetitorSnapshot
	for rows.Next() {
		var s models.CompetitorSnapshot
		if err := rows.Scan(&s.ID, &s.TenantID, &s.CompetitorURL, &s.Count, &s.AvgPrice,
			&s.MinPrice, &s.MaxPrice, &s.TotalInventoryValue, &s.AvgMileage, &s.MinMileage,
			&s.MaxMileage, &s.TopMakes, &s.ScannedAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// ListCompetitorHistory returns scan rows newest first, for one
// competitor when a URL is given.
func (r *Repository) ListCompetitorHistory(ctx context.Context, tenantID, competitorURL string) ([]models.CompetitorScanRecord, error) {
	q := `SELECT id, tenant_id, competitor_url, ` + competitorStatColumns + `, scanned_at
		FROM competitor_scan_history
		WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if competitorURL != "" {
		q += ` AND competitor_url = $2`
		args = append(args, competitorURL)
	}
	q += ` ORDER BY scanned_at DESC LIMIT 100`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.CompetitorScanRecord
	for rows.Next() {
		var rec models.CompetitorScanRecord
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.CompetitorURL, &rec.Count, &rec.AvgPrice,
			&rec.MinPrice, &rec.MaxPrice, &rec.TotalInventoryValue, &rec.AvgMileage,
			&rec.MinMileage, &rec.MaxMileage, &rec.TopMakes, &rec.ScannedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
