package models

import (
	"encoding/json"
	"time"
)

// Lifecycle states shared across packages.
const (
	VehicleStatusActive = "active"
	VehicleStatusSold   = "sold"

	SnapshotStatusPending = "pending"
	SnapshotStatusSuccess = "success"
	SnapshotStatusPartial = "partial"
	SnapshotStatusFailed  = "failed"

	TenantStatusSuspended = "suspended"
	TenantStatusCancelled = "cancelled"
)

// Tenant represents the 'tenants' table. The engine reads tenants; it
// never creates or deletes them.
type Tenant struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Website      string       `json:"website"`
	Status       string       `json:"status"` // trial, active, suspended, cancelled
	Tier         string       `json:"tier"`   // starter, professional, enterprise
	CostSettings CostSettings `json:"cost_settings"` // Stored as JSONB
	CreatedAt    time.Time    `json:"created_at"`
}

// CostSettings is the tenant's free-form cost mapping. The engine never
// populates profit fields from it; it is reserved for manual entry.
type CostSettings struct {
	AuctionFeePercent   float64 `json:"auction_fee_percent,omitempty"`
	ReconditioningCost  float64 `json:"reconditioning_cost,omitempty"`
	TransportCost       float64 `json:"transport_cost,omitempty"`
	FloorPlanRate       float64 `json:"floor_plan_rate,omitempty"`
	TargetMarginPercent float64 `json:"target_margin_percent,omitempty"`
	TargetDaysToSale    int     `json:"target_days_to_sale,omitempty"`
}

// ParsedVehicle is one listing as extracted in a single run. It is
// ephemeral; only reconciliation output is persisted.
type ParsedVehicle struct {
	VIN         string     `json:"vin,omitempty"`
	StockNumber string     `json:"stock_number,omitempty"`
	Year        int        `json:"year,omitempty"`
	Make        string     `json:"make,omitempty"`
	Model       string     `json:"model,omitempty"`
	Trim        string     `json:"trim,omitempty"`
	Color       string     `json:"color,omitempty"`
	Mileage     int        `json:"mileage,omitempty"`
	Price       int        `json:"price,omitempty"`
	URL         string     `json:"url,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	ImageURLs   []string   `json:"image_urls,omitempty"`
	ImageDate   *time.Time `json:"image_date,omitempty"`   // From image filename clustering
	ListingDate string     `json:"listing_date,omitempty"` // Raw date string when a renderer supplies one
}

// PricePoint is one entry of a vehicle's append-only price history.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price int       `json:"price"`
}

// VehicleHistory represents the 'vehicle_history' table: every vehicle a
// tenant has ever listed. At most one active row per (tenant, identifier).
type VehicleHistory struct {
	ID          int64    `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Identifier  string   `json:"identifier"` // Real VIN or synthetic (STOCK_*, attr-hash)
	StockNumber string   `json:"stock_number,omitempty"`
	Year        int      `json:"year,omitempty"`
	Make        string   `json:"make,omitempty"`
	Model       string   `json:"model,omitempty"`
	Trim        string   `json:"trim,omitempty"`
	Color       string   `json:"color,omitempty"`
	Price       int      `json:"price,omitempty"`
	Mileage     int      `json:"mileage,omitempty"`
	URL         string   `json:"url,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"` // Stored as JSONB

	FirstSeenAt  time.Time    `json:"first_seen_at"` // Resolved listing date on insert
	LastSeenAt   time.Time    `json:"last_seen_at"`
	Status       string       `json:"status"`        // active, sold
	PriceHistory []PricePoint `json:"price_history"` // Stored as JSONB, append-only

	// Listing date provenance
	ListingDateConfidence string `json:"listing_date_confidence,omitempty"` // high, medium, low, estimated
	ListingDateSource     string `json:"listing_date_source,omitempty"`    // image_filename, json_ld, meta_tag, sitemap, visible_text, http_header, first_scan

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SalesRecord represents the 'sales_records' table, emitted when a
// listing transitions to sold. UNIQUE(tenant_id, identifier, sale_date).
type SalesRecord struct {
	ID         int64     `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Identifier string    `json:"identifier"`
	Year       int       `json:"year,omitempty"`
	Make       string    `json:"make,omitempty"`
	Model      string    `json:"model,omitempty"`
	SalePrice  *int      `json:"sale_price,omitempty"` // Last observed listing price
	SaleDate   time.Time `json:"sale_date"`
	DaysToSale int       `json:"days_to_sale"`

	// Reserved for manual entry; the engine leaves these NULL.
	AcquisitionCost *float64 `json:"acquisition_cost,omitempty"`
	GrossProfit     *float64 `json:"gross_profit,omitempty"`
	MarginPercent   *float64 `json:"margin_percent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// InventorySnapshot represents the 'inventory_snapshots' table: one row
// per pipeline invocation per tenant.
type InventorySnapshot struct {
	ID            string          `json:"id"` // UUID
	TenantID      string          `json:"tenant_id"`
	StartedAt     time.Time       `json:"started_at"`
	Status        string          `json:"status"` // pending, success, partial, failed
	VehiclesFound int             `json:"vehicles_found"`
	DurationMS    int64           `json:"duration_ms"`
	Raw           json.RawMessage `json:"raw,omitempty"` // Enhanced parsed set, JSONB

	// Extractor observability, recorded but never consulted for correctness.
	ScraperMethod     string `json:"scraper_method,omitempty"` // primary, secondary, html_parser, mixed
	ScraperTier       string `json:"scraper_tier,omitempty"`
	ScraperConfidence string `json:"scraper_confidence,omitempty"` // high, medium, low
}

// ScrapingLog represents the 'scraping_logs' table. SnapshotID is nil
// for setup failures that happen before a snapshot exists.
type ScrapingLog struct {
	ID         int64           `json:"id"`
	TenantID   string          `json:"tenant_id"`
	SnapshotID *string         `json:"snapshot_id,omitempty"`
	Level      string          `json:"level"` // info, warn, error
	Message    string          `json:"message"`
	Detail     json.RawMessage `json:"detail,omitempty"` // Stored as JSONB
	CreatedAt  time.Time       `json:"created_at"`
}

// SitemapCache represents the 'sitemap_cache' table. One row per tenant,
// upserted on every refresh.
type SitemapCache struct {
	TenantID     string            `json:"tenant_id"`
	Website      string            `json:"website"`
	Paths        map[string]string `json:"paths"` // path -> lastmod (ISO date), JSONB
	URLCount     int               `json:"url_count"`
	CachedAt     time.Time         `json:"cached_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	FetchStatus  string            `json:"fetch_status"` // success, not_found, error
	ErrorMessage string            `json:"error_message,omitempty"`
}

// MakeCount is one entry of a competitor snapshot's top-makes ranking.
type MakeCount struct {
	Make  string `json:"make"`
	Count int    `json:"count"`
}

// CompetitorStats holds the aggregates computed over one full parsed set.
type CompetitorStats struct {
	Count               int         `json:"count"`
	AvgPrice            int         `json:"avg_price"`
	MinPrice            int         `json:"min_price"`
	MaxPrice            int         `json:"max_price"`
	TotalInventoryValue int         `json:"total_inventory_value"`
	AvgMileage          int         `json:"avg_mileage"`
	MinMileage          int         `json:"min_mileage"`
	MaxMileage          int         `json:"max_mileage"`
	TopMakes            []MakeCount `json:"top_makes"` // Five most frequent makes, JSONB
}

// CompetitorSnapshot represents the 'competitor_snapshots' table.
// UNIQUE(tenant_id, competitor_url); upserted every scan.
type CompetitorSnapshot struct {
	ID            int64  `json:"id"`
	TenantID      string `json:"tenant_id"`
	CompetitorURL string `json:"competitor_url"`
	CompetitorStats
	ScannedAt time.Time `json:"scanned_at"`
}

// CompetitorScanRecord represents the 'competitor_scan_history' table,
// append-only with one row per scan.
type CompetitorScanRecord struct {
	ID            int64  `json:"id"`
	TenantID      string `json:"tenant_id"`
	CompetitorURL string `json:"competitor_url"`
	CompetitorStats
	ScannedAt time.Time `json:"scanned_at"`
}
