package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"dealerscan/internal/eventbus"
	"dealerscan/internal/listingdate"
	"dealerscan/internal/models"
	"dealerscan/internal/parser"
)

// Store is the slice of persistence the engine needs. Implemented by
// internal/repository.
type Store interface {
	ListActiveVehicles(ctx context.Context, tenantID string) ([]*models.VehicleHistory, error)
	InsertVehicle(ctx context.Context, v *models.VehicleHistory) error
	UpdateVehicle(ctx context.Context, v *models.VehicleHistory) error
	// InsertSalesRecord reports false when a record for the same
	// (tenant, identifier, sale_date) already existed.
	InsertSalesRecord(ctx context.Context, r *models.SalesRecord) (bool, error)
}

// DateResolver is satisfied by listingdate.Resolver.
type DateResolver interface {
	Resolve(v models.ParsedVehicle, html string, sitemapPaths map[string]string) listingdate.Resolution
}

const defaultSoldAbsence = 48 * time.Hour

// Input is one run's reconciliation material for a single tenant.
type Input struct {
	Vehicles []models.ParsedVehicle
	// PageHTML maps a vehicle URL to the page it was parsed from, for
	// listing-date resolution. Empty for renderer-extracted vehicles.
	PageHTML map[string]string
	// SitemapPaths is the tenant's cached path -> lastmod index.
	SitemapPaths map[string]string
}

// Outcome counts what one reconciliation did.
type Outcome struct {
	New           int
	Updated       int
	PriceChanged  int
	Sold          int
	Dropped       int
	WriteFailures int
}

// Engine matches parsed listings against active history rows and owns
// every vehicle_history and sales_records write of the pipeline.
type Engine struct {
	store       Store
	resolver    DateResolver
	bus         *eventbus.Bus
	soldAbsence time.Duration
	now         func() time.Time
}

func NewEngine(store Store, resolver DateResolver, bus *eventbus.Bus, soldAbsence time.Duration) *Engine {
	if soldAbsence <= 0 {
		soldAbsence = defaultSoldAbsence
	}
	return &Engine{
		store:       store,
		resolver:    resolver,
		bus:         bus,
		soldAbsence: soldAbsence,
		now:         time.Now,
	}
}

// Reconcile processes the parsed set in order, then sweeps active rows
// that have stopped appearing. Per-vehicle write failures are counted
// and skipped; only the initial history read is fatal.
func (e *Engine) Reconcile(ctx context.Context, tenantID string, in Input) (*Outcome, error) {
	now := e.now()
	out := &Outcome{}

	actives, err := e.store.ListActiveVehicles(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active history for %s: %w", tenantID, err)
	}
	activeByID := make(map[string]*models.VehicleHistory, len(actives))
	for _, row := range actives {
		activeByID[row.Identifier] = row
	}

	claimed := make(map[string]bool, len(in.Vehicles))
	runIDs := make(map[string]bool, len(in.Vehicles)*2)

	for _, v := range in.Vehicles {
		id, ok := Identifier(v, claimed)
		if !ok {
			log.Printf("[Reconcile] dropping unidentifiable listing for %s (url=%s)", tenantID, v.URL)
			out.Dropped++
			continue
		}
		if claimed[id] {
			continue // same listing reached twice in one run
		}
		claimed[id] = true
		runIDs[id] = true

		row := activeByID[id]
		if row == nil && parser.IsValidVIN(id) {
			// The car may be stored under a synthetic key from before
			// the site exposed its VIN. Upgrade that row in place.
			if syn := syntheticIdentifier(v); syn != "" {
				if prev := activeByID[syn]; prev != nil {
					delete(activeByID, syn)
					prev.Identifier = id
					activeByID[id] = prev
					runIDs[syn] = true
					row = prev
				}
			}
		}

		if row == nil {
			e.insert(ctx, tenantID, v, id, now, in, out)
			continue
		}
		e.update(ctx, tenantID, v, row, now, out)
	}

	e.sweep(ctx, tenantID, activeByID, runIDs, now, out)
	return out, nil
}

// Resweep runs the disappearance sweep alone, against stored
// last_seen_at timestamps, without ingesting a new parse. Repeat runs
// are harmless through the sales uniqueness constraint.
func (e *Engine) Resweep(ctx context.Context, tenantID string) (*Outcome, error) {
	out := &Outcome{}

	actives, err := e.store.ListActiveVehicles(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active history for %s: %w", tenantID, err)
	}
	activeByID := make(map[string]*models.VehicleHistory, len(actives))
	for _, row := range actives {
		activeByID[row.Identifier] = row
	}

	e.sweep(ctx, tenantID, activeByID, map[string]bool{}, e.now(), out)
	return out, nil
}

func (e *Engine) insert(ctx context.Context, tenantID string, v models.ParsedVehicle, id string, now time.Time, in Input, out *Outcome) {
	res := e.resolver.Resolve(v, in.PageHTML[v.URL], in.SitemapPaths)
	row := &models.VehicleHistory{
		TenantID:    tenantID,
		Identifier:  id,
		StockNumber: v.StockNumber,
		Year:        v.Year,
		Make:        v.Make,
		Model:       v.Model,
		Trim:        v.Trim,
		Color:       v.Color,
		Price:       v.Price,
		Mileage:     v.Mileage,
		URL:         v.URL,
		ImageURL:    v.ImageURL,
		ImageURLs:   v.ImageURLs,

		FirstSeenAt: res.Date,
		LastSeenAt:  now,
		Status:      models.VehicleStatusActive,

		ListingDateConfidence: res.Confidence,
		ListingDateSource:     res.Source,
	}
	if v.Price != 0 {
		row.PriceHistory = []models.PricePoint{{Date: now, Price: v.Price}}
	}

	if err := e.store.InsertVehicle(ctx, row); err != nil {
		log.Printf("[Reconcile] failed to insert %s/%s: %v", tenantID, id, err)
		out.WriteFailures++
		return
	}
	out.New++
	e.publish(eventbus.TypeVehicleNew, tenantID, map[string]interface{}{
		"identifier": id,
		"year":       v.Year,
		"make":       v.Make,
		"model":      v.Model,
		"price":      v.Price,
	})
}

func (e *Engine) update(ctx context.Context, tenantID string, v models.ParsedVehicle, row *models.VehicleHistory, now time.Time, out *Outcome) {
	row.LastSeenAt = now
	if v.StockNumber != "" {
		row.StockNumber = v.StockNumber
	}
	if v.Year != 0 {
		row.Year = v.Year
	}
	if v.Make != "" {
		row.Make = v.Make
	}
	if v.Model != "" {
		row.Model = v.Model
	}
	if v.Trim != "" {
		row.Trim = v.Trim
	}
	if v.Color != "" {
		row.Color = v.Color
	}
	if v.Mileage != 0 {
		row.Mileage = v.Mileage
	}
	if v.URL != "" {
		row.URL = v.URL
	}
	if v.ImageURL != "" {
		row.ImageURL = v.ImageURL
	}
	if len(v.ImageURLs) > 0 {
		row.ImageURLs = v.ImageURLs
	}

	oldPrice := row.Price
	priceChanged := v.Price != 0 && v.Price != row.Price
	if priceChanged {
		row.PriceHistory = append(row.PriceHistory, models.PricePoint{Date: now, Price: v.Price})
		row.Price = v.Price
	}

	if err := e.store.UpdateVehicle(ctx, row); err != nil {
		log.Printf("[Reconcile] failed to update %s/%s: %v", tenantID, row.Identifier, err)
		out.WriteFailures++
		return
	}
	out.Updated++
	if priceChanged {
		out.PriceChanged++
		e.publish(eventbus.TypeVehiclePriceChanged, tenantID, map[string]interface{}{
			"identifier": row.Identifier,
			"old_price":  oldPrice,
			"new_price":  row.Price,
		})
	}
}

// sweep marks active rows unseen past the absence threshold as sold and
// emits one sales record each. A vehicle present in the current run is
// never swept, whatever its stored last_seen_at says.
func (e *Engine) sweep(ctx context.Context, tenantID string, activeByID map[string]*models.VehicleHistory, runIDs map[string]bool, now time.Time, out *Outcome) {
	threshold := now.Add(-e.soldAbsence)
	saleDate := now.UTC().Truncate(24 * time.Hour)

	for _, row := range activeByID {
		if runIDs[row.Identifier] || !row.LastSeenAt.Before(threshold) {
			continue
		}

		row.Status = models.VehicleStatusSold
		if err := e.store.UpdateVehicle(ctx, row); err != nil {
			log.Printf("[Reconcile] failed to mark %s/%s sold: %v", tenantID, row.Identifier, err)
			out.WriteFailures++
			continue
		}

		days := int(saleDate.Sub(row.FirstSeenAt.UTC().Truncate(24*time.Hour)).Hours() / 24)
		if days < 0 {
			days = 0
		}
		rec := &models.SalesRecord{
			TenantID:   tenantID,
			Identifier: row.Identifier,
			Year:       row.Year,
			Make:       row.Make,
			Model:      row.Model,
			SaleDate:   saleDate,
			DaysToSale: days,
		}
		if row.Price != 0 {
			price := row.Price
			rec.SalePrice = &price
		}

		inserted, err := e.store.InsertSalesRecord(ctx, rec)
		if err != nil {
			log.Printf("[Reconcile] failed to record sale %s/%s: %v", tenantID, row.Identifier, err)
			out.WriteFailures++
			continue
		}
		if inserted {
			out.Sold++
			e.publish(eventbus.TypeVehicleSold, tenantID, map[string]interface{}{
				"identifier":   row.Identifier,
				"sale_price":   rec.SalePrice,
				"days_to_sale": days,
			})
		}
	}
}

func (e *Engine) publish(eventType, tenantID string, data interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type:      eventType,
		TenantID:  tenantID,
		Timestamp: e.now(),
		Data:      data,
	})
}
