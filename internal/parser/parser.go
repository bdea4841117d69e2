// Package parser turns dealer-site HTML into ParsedVehicle records via
// cascading strategies: JSON-LD structured data, vehicle-card isolation,
// then generic sections. The first strategy yielding a valid vehicle
// wins; strategies are never merged.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dealerscan/internal/models"
)

// ErrNoVehicles means every strategy came up empty.
var ErrNoVehicles = errors.New("no vehicles found")

// ParseInventoryHTML extracts every vehicle listing from a listing or
// search-results page.
func ParseInventoryHTML(html, baseURL string) ([]models.ParsedVehicle, error) {
	if strings.TrimSpace(html) == "" {
		return nil, ErrNoVehicles
	}

	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(html))
	if docErr == nil {
		if vs := dedupe(vehiclesFromJSONLD(doc, baseURL)); len(vs) > 0 {
			return vs, nil
		}
		if vs := dedupe(vehiclesFromCards(doc, baseURL)); len(vs) > 0 {
			return vs, nil
		}
	}
	if vs := dedupe(vehiclesFromSections(html, baseURL)); len(vs) > 0 {
		return vs, nil
	}
	return nil, ErrNoVehicles
}

// ParseDetailHTML extracts at most one vehicle from a detail page, for
// enhancement of an incomplete listing record.
func ParseDetailHTML(html, baseURL string) (*models.ParsedVehicle, error) {
	if strings.TrimSpace(html) == "" {
		return nil, ErrNoVehicles
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		if vs := vehiclesFromJSONLD(doc, baseURL); len(vs) > 0 {
			v := vs[0]
			if v.URL == "" {
				v.URL = baseURL
			}
			return &v, nil
		}
	}

	// Treat the whole page as one container. Usability is judged on
	// what the page itself yields; the caller's URL is not a finding.
	v := vehicleFromContainer(html, stripTags(html), baseURL)
	if !isUsableVehicle(v) {
		return nil, ErrNoVehicles
	}
	v.URL = baseURL
	return &v, nil
}

// isUsableVehicle applies the validity rules: a real VIN, or year+make,
// or price+year, or at least a detail URL for later enrichment.
func isUsableVehicle(v models.ParsedVehicle) bool {
	switch {
	case IsValidVIN(v.VIN):
		return true
	case v.Year != 0 && v.Make != "":
		return true
	case v.Price != 0 && v.Year != 0:
		return true
	case v.URL != "":
		return true
	}
	return false
}

// dedupe drops repeat records within one strategy's output, keeping the
// first occurrence. The same card often links to its detail page twice
// (image and title).
func dedupe(vehicles []models.ParsedVehicle) []models.ParsedVehicle {
	seen := make(map[string]bool, len(vehicles))
	var out []models.ParsedVehicle
	for _, v := range vehicles {
		key := dedupeKey(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

func dedupeKey(v models.ParsedVehicle) string {
	if IsValidVIN(v.VIN) {
		return "vin:" + v.VIN
	}
	if v.URL != "" {
		return "url:" + v.URL
	}
	return fmt.Sprintf("attr:%d|%s|%s|%d|%d", v.Year, v.Make, v.Model, v.Price, v.Mileage)
}
