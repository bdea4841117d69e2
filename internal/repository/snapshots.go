package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"dealerscan/internal/models"
)

// sanitizeJSONB prepares scraped content for a JSONB column: strips
// null bytes (raw and \u0000 escaped, which Postgres rejects) and
// invalid UTF-8, then validates. Returns nil for empty or broken input
// so the column goes NULL instead of failing the whole write.
func sanitizeJSONB(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	s := strings.ReplaceAll(string(raw), `\u0000`, "")
	if strings.ContainsRune(s, 0) {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	if !json.Valid([]byte(s)) {
		return nil
	}
	return []byte(s)
}

func (r *Repository) InsertSnapshot(ctx context.Context, snap *models.InventorySnapshot) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO inventory_snapshots (
			id, tenant_id, started_at, status, vehicles_found, duration_ms,
			raw_data, scraper_method, scraper_tier, scraper_confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		snap.ID, snap.TenantID, snap.StartedAt, snap.Status, snap.VehiclesFound,
		snap.DurationMS, sanitizeJSONB(snap.Raw), snap.ScraperMethod, snap.ScraperTier,
		snap.ScraperConfidence)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (r *Repository) UpdateSnapshot(ctx context.Context, snap *models.InventorySnapshot) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE inventory_snapshots SET
			status = $2, vehicles_found = $3, duration_ms = $4, raw_data = $5,
			scraper_method = $6, scraper_tier = $7, scraper_confidence = $8
		WHERE id = $1`,
		snap.ID, snap.Status, snap.VehiclesFound, snap.DurationMS, sanitizeJSONB(snap.Raw),
		snap.ScraperMethod, snap.ScraperTier, snap.ScraperConfidence)
	if err != nil {
		return fmt.Errorf("failed to update snapshot %s: %w", snap.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot %s: %w", snap.ID, ErrNotFound)
	}
	return nil
}

// ListSnapshots returns run markers newest first. An empty tenant means
// across all tenants; raw_data is omitted because it can be megabytes.
func (r *Repository) ListSnapshots(ctx context.Context, tenantID string, limit int) ([]models.InventorySnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, tenant_id, started_at, status, vehicles_found, duration_ms,
		scraper_method, scraper_tier, scraper_confidence
		FROM inventory_snapshots`
	var args []interface{}
	if tenantID != "" {
		q += ` WHERE tenant_id = $1`
		args = append(args, tenantID)
	}
	q += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []models.InventorySnapshot
	for rows.Next() {
		var s models.InventorySnapshot
		if err := rows.Scan(&s.ID, &s.TenantID, &s.StartedAt, &s.Status, &s.VehiclesFound,
			&s.DurationMS, &s.ScraperMethod, &s.ScraperTier, &s.ScraperConfidence); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
