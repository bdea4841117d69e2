// Package reconcile diffs a run's parsed listings against the tenant's
// persistent vehicle history: new rows are inserted, matched rows are
// refreshed, and listings that stopped appearing are swept into sales.
package reconcile

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"dealerscan/internal/models"
	"dealerscan/internal/parser"
)

// Identifier derives the stable per-tenant key used to match the same
// physical vehicle across runs: the VIN when present, else a
// stock-number key, else an attribute key. seen holds identifiers
// already claimed earlier in the same run; an attribute key colliding
// with one gets a URL-derived salt so both listings keep distinct rows.
// ok is false when the listing carries too little to identify.
func Identifier(v models.ParsedVehicle, seen map[string]bool) (id string, ok bool) {
	if vin := strings.ToUpper(strings.TrimSpace(v.VIN)); parser.IsValidVIN(vin) {
		return vin, true
	}
	if key := stockKey(v.StockNumber); key != "" {
		return key, true
	}
	if v.Year == 0 || v.Make == "" || v.Model == "" {
		return "", false
	}
	base := attrKey(v)
	if !seen[base] {
		return base, true
	}
	return base + "_" + urlSalt(v.URL), true
}

// syntheticIdentifier returns the key the vehicle would carry without
// its VIN. Used to locate a history row written before the site started
// exposing the VIN, so the row can be upgraded instead of duplicated.
func syntheticIdentifier(v models.ParsedVehicle) string {
	if key := stockKey(v.StockNumber); key != "" {
		return key
	}
	if v.Year == 0 || v.Make == "" || v.Model == "" {
		return ""
	}
	return attrKey(v)
}

func stockKey(stock string) string {
	s := strings.TrimSpace(stock)
	if s == "" {
		return ""
	}
	return "STOCK_" + strings.ReplaceAll(strings.ToUpper(s), " ", "_")
}

// attrKey joins year, make, model, trim, mileage, color, and price into
// one uppercase key. Empty attributes keep their slot so the shape is
// stable, e.g. 2021_FORD_F-150__28000__37000 for a listing without trim
// or color.
func attrKey(v models.ParsedVehicle) string {
	num := func(n int) string {
		if n == 0 {
			return ""
		}
		return strconv.Itoa(n)
	}
	parts := []string{
		num(v.Year), v.Make, v.Model, v.Trim, num(v.Mileage), v.Color, num(v.Price),
	}
	for i, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		parts[i] = strings.ReplaceAll(p, " ", "_")
	}
	return strings.Join(parts, "_")
}

// urlSalt reduces the URL's last path segment to its alphanumerics.
// Without a URL the salt is random, which gives up cross-run stability
// for that listing but keeps the current run collision-free.
func urlSalt(rawurl string) string {
	seg := strings.TrimRight(rawurl, "/")
	if i := strings.LastIndexByte(seg, '/'); i >= 0 {
		seg = seg[i+1:]
	}
	var b strings.Builder
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return strings.ToUpper(uuid.NewString()[:8])
	}
	return b.String()
}
