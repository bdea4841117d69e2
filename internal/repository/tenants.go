package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dealerscan/internal/models"
)

const tenantColumns = `id, name, website, status, tier, cost_settings, created_at`

func (r *Repository) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Website, &t.Status, &t.Tier, &t.CostSettings, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := r.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Website, &t.Status, &t.Tier, &t.CostSettings, &t.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// CountTenantsByStatus feeds the status endpoint.
func (r *Repository) CountTenantsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM tenants GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
