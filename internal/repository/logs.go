package repository

import (
	"context"
	"fmt"
	"strings"

	"dealerscan/internal/models"
)

func (r *Repository) InsertScrapingLog(ctx context.Context, entry *models.ScrapingLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO scraping_logs (tenant_id, snapshot_id, level, message, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.TenantID, entry.SnapshotID, entry.Level, entry.Message, sanitizeJSONB(entry.Detail))
	if err != nil {
		return fmt.Errorf("failed to insert scraping log: %w", err)
	}
	return nil
}

// ListLogs filters by snapshot, tenant, or both, newest first. Passing
// both confines a snapshot lookup to that tenant's own rows.
func (r *Repository) ListLogs(ctx context.Context, tenantID, snapshotID string, limit int) ([]models.ScrapingLog, error) {
	if limit <= 0 {
		limit = 200
	}
	q := `SELECT id, tenant_id, snapshot_id, level, message, detail, created_at FROM scraping_logs`
	var args []interface{}
	var where []string
	if snapshotID != "" {
		args = append(args, snapshotID)
		where = append(where, fmt.Sprintf("snapshot_id = $%d", len(args)))
	}
	if tenantID != "" {
		args = append(args, tenantID)
		where = append(where, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ScrapingLog
	for rows.Next() {
		var l models.ScrapingLog
		if err := rows.Scan(&l.ID, &l.TenantID, &l.SnapshotID, &l.Level, &l.Message, &l.Detail, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
