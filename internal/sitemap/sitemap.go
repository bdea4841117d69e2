// Package sitemap discovers and parses dealer-site sitemaps, producing a
// path -> lastmod index the listing-date resolver can consult cheaply.
package sitemap

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// Probed in addition to robots.txt directives. Dealer platforms differ
// on where they publish inventory sitemaps.
var commonSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/product-sitemap.xml",
	"/inventory-sitemap.xml",
	"/wp-sitemap.xml",
}

var vehiclePathMarkers = []string{
	"/vehicle", "/inventory/", "/used-", "/cars/", "-for-sale", "/detail", "/stock",
}

var excludedPathMarkers = []string{
	"search", "category", "tag", "page/", "blog", "news", "about", "contact",
}

// childSitemapMarkers select which children of a sitemap index are worth
// fetching.
var childSitemapMarkers = []string{"inventory", "vehicle", "car"}

type xmlEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type xmlDoc struct {
	XMLName  xml.Name
	Entries  []xmlEntry `xml:"url"`
	Children []xmlEntry `xml:"sitemap"`
}

// parseDocument unmarshals one sitemap XML document. isIndex reports a
// <sitemapindex> root whose entries point at child sitemaps rather than
// pages.
func parseDocument(body []byte) (entries []xmlEntry, isIndex bool, err error) {
	var doc xmlDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, false, fmt.Errorf("parse sitemap xml: %w", err)
	}
	if strings.EqualFold(doc.XMLName.Local, "sitemapindex") {
		return doc.Children, true, nil
	}
	return doc.Entries, false, nil
}

// parseRobots extracts Sitemap: directive URLs from a robots.txt body.
func parseRobots(body []byte) []string {
	var out []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 8 || !strings.EqualFold(line[:8], "sitemap:") {
			continue
		}
		if loc := strings.TrimSpace(line[8:]); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

// isVehicleURL keeps only URLs that look like vehicle detail pages.
func isVehicleURL(loc string) bool {
	lower := strings.ToLower(loc)
	for _, marker := range excludedPathMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	for _, marker := range vehiclePathMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isInventoryChild reports whether a child sitemap URL is worth
// recursing into.
func isInventoryChild(loc string) bool {
	lower := strings.ToLower(loc)
	for _, marker := range childSitemapMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// pathOf returns the URL path used as the index key, falling back to the
// raw string when it does not parse.
func pathOf(loc string) string {
	u, err := url.Parse(strings.TrimSpace(loc))
	if err != nil || u.Path == "" {
		return strings.TrimSpace(loc)
	}
	return u.Path
}

// originOf derives scheme://host from the tenant's website. The scheme
// is kept as given so the caller controls canonicalization.
func originOf(website string) (string, error) {
	s := strings.TrimSpace(website)
	if s == "" {
		return "", fmt.Errorf("empty website")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("no host in website %q", website)
	}
	return u.Scheme + "://" + u.Host, nil
}
