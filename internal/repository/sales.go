package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dealerscan/internal/models"
)

// InsertSalesRecord appends a derived sale. It reports false when a row
// for the same (tenant, identifier, sale_date) already existed, which is
// how repeated sweeps stay idempotent.
func (r *Repository) InsertSalesRecord(ctx context.Context, rec *models.SalesRecord) (bool, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales_records (
			tenant_id, identifier, year, make, model, sale_price, sale_date,
			days_to_sale, acquisition_cost, gross_profit, margin_percent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, identifier, sale_date) DO NOTHING
		RETURNING id, created_at`,
		rec.TenantID, rec.Identifier, rec.Year, rec.Make, rec.Model, rec.SalePrice,
		rec.SaleDate, rec.DaysToSale, rec.AcquisitionCost, rec.GrossProfit, rec.MarginPercent,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert sales record %s: %w", rec.Identifier, err)
	}
	return true, nil
}

func (r *Repository) ListSales(ctx context.Context, tenantID string) ([]models.SalesRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, identifier, year, make, model, sale_price, sale_date,
			days_to_sale, acquisition_cost, gross_profit, margin_percent, created_at
		FROM sales_records
		WHERE tenant_id = $1
		ORDER BY sale_date DESC, created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []models.SalesRecord
	for rows.Next() {
		var s models.SalesRecord
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Identifier, &s.Year, &s.Make, &s.Model,
			&s.SalePrice, &s.SaleDate, &s.DaysToSale, &s.AcquisitionCost, &s.GrossProfit,
			&s.MarginPercent, &s.CreatedAt); err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}
