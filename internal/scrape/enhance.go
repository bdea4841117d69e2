package scrape

import (
	"context"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"dealerscan/internal/models"
	"dealerscan/internal/parser"
	"dealerscan/internal/vindecode"
)

// needsDetail reports whether a listing is missing a field its detail
// page could supply.
func needsDetail(v models.ParsedVehicle) bool {
	return v.VIN == "" || v.Year == 0 || v.Make == "" || v.Model == "" || v.Price == 0 || v.Mileage == 0
}

// needsDecode reports whether VIN decoding could still complete the
// listing. The decode service only carries year, make, model, and trim.
func needsDecode(v models.ParsedVehicle) bool {
	return v.VIN != "" && (v.Year == 0 || v.Make == "" || v.Model == "")
}

// detailMismatch reports whether the detail page describes a different
// vehicle than the listing that linked to it. Year and make are the
// check; one mismatch discards the whole detail parse so a wrong page
// cannot poison the listing.
func detailMismatch(listing, detail models.ParsedVehicle) bool {
	if listing.Year != 0 && detail.Year != 0 && listing.Year != detail.Year {
		return true
	}
	if listing.Make != "" && detail.Make != "" && !strings.EqualFold(listing.Make, detail.Make) {
		return true
	}
	return false
}

// mergeDetail copies detail-page fields onto the listing wherever the
// listing is empty. Listing-page values always win.
func mergeDetail(listing *models.ParsedVehicle, detail models.ParsedVehicle) {
	if listing.VIN == "" {
		listing.VIN = detail.VIN
	}
	if listing.StockNumber == "" {
		listing.StockNumber = detail.StockNumber
	}
	if listing.Year == 0 {
		listing.Year = detail.Year
	}
	if listing.Make == "" {
		listing.Make = detail.Make
	}
	if listing.Model == "" {
		listing.Model = detail.Model
	}
	if listing.Trim == "" {
		listing.Trim = detail.Trim
	}
	if listing.Color == "" {
		listing.Color = detail.Color
	}
	if listing.Mileage == 0 {
		listing.Mileage = detail.Mileage
	}
	if listing.Price == 0 {
		listing.Price = detail.Price
	}
	if listing.ImageURL == "" {
		listing.ImageURL = detail.ImageURL
	}
	if len(listing.ImageURLs) == 0 {
		listing.ImageURLs = detail.ImageURLs
	}
	if listing.ImageDate == nil {
		listing.ImageDate = detail.ImageDate
	}
}

// enhanceDetails fetches the detail page of every incomplete listing
// with bounded concurrency and merges what it finds. Fetch and parse
// problems leave the listing as it came off the inventory page. Pages
// that merged cleanly are kept for listing-date resolution.
func (p *Pipeline) enhanceDetails(ctx context.Context, tenantID string, snapshotID *string, vehicles []models.ParsedVehicle, pageHTML map[string]string) {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range vehicles {
		if vehicles[i].URL == "" || !needsDetail(vehicles[i]) {
			continue
		}
		i := i
		g.Go(func() error {
			v := &vehicles[i]
			res := p.fetcher.Fetch(ctx, v.URL)
			if !res.OK {
				log.Printf("[Pipeline] tenant=%s detail fetch failed for %s: %v", tenantID, v.URL, res.Err)
				return nil
			}
			html := string(res.Body)
			detail, err := parser.ParseDetailHTML(html, v.URL)
			if err != nil {
				return nil
			}
			if detailMismatch(*v, *detail) {
				p.logRow(ctx, tenantID, snapshotID, levelWarn, "detail page mismatch", map[string]interface{}{
					"url":          v.URL,
					"listing_year": v.Year,
					"detail_year":  detail.Year,
					"listing_make": v.Make,
					"detail_make":  detail.Make,
				})
				return nil
			}
			mergeDetail(v, *detail)
			mu.Lock()
			pageHTML[v.URL] = html
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
}

// enrichVINs decodes VINs for listings still missing critical fields
// after detail enhancement. One decode attempt per vehicle; a failure
// leaves the listing unchanged.
func (p *Pipeline) enrichVINs(ctx context.Context, vehicles []models.ParsedVehicle) {
	if p.decoder == nil {
		return
	}
	for i := range vehicles {
		v := &vehicles[i]
		if !needsDecode(*v) || !parser.IsValidVIN(v.VIN) {
			continue
		}
		d, err := p.decoder.Decode(ctx, v.VIN)
		if err != nil {
			log.Printf("[Pipeline] vin decode failed for %s: %v", v.VIN, err)
			continue
		}
		vindecode.Enrich(v, d)
	}
}
