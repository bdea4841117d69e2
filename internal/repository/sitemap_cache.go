package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dealerscan/internal/models"
)

// GetSitemapCache returns nil without error when the tenant has no
// cached row yet.
func (r *Repository) GetSitemapCache(ctx context.Context, tenantID string) (*models.SitemapCache, error) {
	var c models.SitemapCache
	err := r.db.QueryRow(ctx, `
		SELECT tenant_id, website, paths, url_count, cached_at, expires_at, fetch_status, error_message
		FROM sitemap_cache WHERE tenant_id = $1`, tenantID).
		Scan(&c.TenantID, &c.Website, &c.Paths, &c.URLCount, &c.CachedAt, &c.ExpiresAt,
			&c.FetchStatus, &c.ErrorMessage)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) UpsertSitemapCache(ctx context.Context, cache *models.SitemapCache) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sitemap_cache (
			tenant_id, website, paths, url_count, cached_at, expires_at, fetch_status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id) DO UPDATE SET
			website = EXCLUDED.website,
			paths = EXCLUDED.paths,
			url_count = EXCLUDED.url_count,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at,
			fetch_status = EXCLUDED.fetch_status,
			error_message = EXCLUDED.error_message`,
		cache.TenantID, cache.Website, cache.Paths, cache.URLCount, cache.CachedAt,
		cache.ExpiresAt, cache.FetchStatus, cache.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to upsert sitemap cache for %s: %w", cache.TenantID, err)
	}
	return nil
}
