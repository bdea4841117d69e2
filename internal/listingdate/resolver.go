// Package listingdate derives when a vehicle was first listed, with
// provenance. Downstream days-to-sale math depends on knowing which
// dates are real and which are estimates, so confidence and source are
// first-class.
package listingdate

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"dealerscan/internal/models"
)

const (
	ConfidenceHigh      = "high"
	ConfidenceMedium    = "medium"
	ConfidenceLow       = "low"
	ConfidenceEstimated = "estimated"
)

const (
	SourceImageFilename = "image_filename"
	SourceJSONLD        = "json_ld"
	SourceMetaTag       = "meta_tag"
	SourceSitemap       = "sitemap"
	SourceVisibleText   = "visible_text"
	SourceHTTPHeader    = "http_header" // legacy rows only; not produced by Resolve
	SourceFirstScan     = "first_scan"
)

// Resolution is a resolved listing date with its provenance.
type Resolution struct {
	Date       time.Time
	Confidence string
	Source     string
}

// Resolver applies the fixed source priority: image filenames, JSON-LD,
// meta tags, sitemap lastmod, visible text, then "first scan" as the
// estimated fallback. Every candidate passes the reasonableness window
// [now-3y, now+1d].
type Resolver struct {
	now func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// Resolve decides the listing date for one vehicle. html is the page
// the vehicle was parsed from ("" when only renderer output is
// available); sitemapPaths is the tenant's cached path -> lastmod index.
func (r *Resolver) Resolve(v models.ParsedVehicle, html string, sitemapPaths map[string]string) Resolution {
	now := r.now()

	// 1. Image filename dates.
	if v.ImageDate != nil && r.reasonable(*v.ImageDate, now) {
		return Resolution{Date: *v.ImageDate, Confidence: ConfidenceHigh, Source: SourceImageFilename}
	}
	if d := ExtractImageDate(imageCandidates(v)); d != nil && r.reasonable(*d, now) {
		return Resolution{Date: *d, Confidence: ConfidenceHigh, Source: SourceImageFilename}
	}

	var doc *goquery.Document
	if html != "" {
		if d, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			doc = d
		}
	}

	// 2. JSON-LD structured data.
	if doc != nil {
		if t, ok := dateFromJSONLD(doc); ok && r.reasonable(t, now) {
			return Resolution{Date: t, Confidence: ConfidenceHigh, Source: SourceJSONLD}
		}
	}

	// 3. Meta tags.
	if doc != nil {
		if t, ok := dateFromMetaTags(doc); ok && r.reasonable(t, now) {
			return Resolution{Date: t, Confidence: ConfidenceHigh, Source: SourceMetaTag}
		}
	}

	// 3b. Renderer-supplied listing date, when one came back with the
	// vehicle. Page-derived, so ranked above the sitemap.
	if v.ListingDate != "" {
		if t, ok := parseFlexibleDate(v.ListingDate); ok && r.reasonable(t, now) {
			return Resolution{Date: t, Confidence: ConfidenceMedium, Source: SourceVisibleText}
		}
	}

	// 4. Sitemap lastmod for this vehicle's path.
	if t, ok := dateFromSitemap(v.URL, sitemapPaths); ok && r.reasonable(t, now) {
		return Resolution{Date: t, Confidence: ConfidenceMedium, Source: SourceSitemap}
	}

	// 5. Visible "Listed/Posted/Added" text.
	if html != "" {
		if t, ok := dateFromVisibleText(html); ok && r.reasonable(t, now) {
			return Resolution{Date: t, Confidence: ConfidenceMedium, Source: SourceVisibleText}
		}
	}

	// 6. First scan.
	return Resolution{Date: now, Confidence: ConfidenceEstimated, Source: SourceFirstScan}
}

func (r *Resolver) reasonable(t, now time.Time) bool {
	return !t.Before(now.AddDate(-3, 0, 0)) && !t.After(now.Add(24*time.Hour))
}

func imageCandidates(v models.ParsedVehicle) []string {
	if len(v.ImageURLs) > 0 {
		return v.ImageURLs
	}
	if v.ImageURL != "" {
		return []string{v.ImageURL}
	}
	return nil
}

// metaDateSelectors cover both property= and name= orderings.
var metaDateNames = []string{
	"article:published_time", "og:updated_time", "datePosted", "pubdate", "DC.date",
}

func dateFromMetaTags(doc *goquery.Document) (time.Time, bool) {
	var found time.Time
	ok := false
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		key, _ := s.Attr("property")
		if key == "" {
			key, _ = s.Attr("name")
		}
		if key == "" {
			return true
		}
		for _, name := range metaDateNames {
			if !strings.EqualFold(key, name) {
				continue
			}
			content, _ := s.Attr("content")
			if t, parsed := parseFlexibleDate(content); parsed {
				found, ok = t, true
				return false
			}
		}
		return true
	})
	return found, ok
}

func dateFromSitemap(vehicleURL string, paths map[string]string) (time.Time, bool) {
	if vehicleURL == "" || len(paths) == 0 {
		return time.Time{}, false
	}
	vpath := vehicleURL
	if u, err := url.Parse(vehicleURL); err == nil && u.Path != "" {
		vpath = u.Path
	}

	if lastmod, exists := paths[vpath]; exists {
		if t, ok := parseFlexibleDate(lastmod); ok {
			return t, true
		}
	}
	// Partial match: either side may carry extra segments.
	for p, lastmod := range paths {
		if strings.Contains(p, vpath) || strings.Contains(vpath, p) {
			if t, ok := parseFlexibleDate(lastmod); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

var visibleTextRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:listed|posted|added)(?:\s+on)?\s*[:\-]?\s*([A-Za-z]{3,9}\.?\s+\d{1,2},?\s+\d{4})`),
	regexp.MustCompile(`(?i)\b(?:listed|posted|added)(?:\s+on)?\s*[:\-]?\s*(\d{1,2}/\d{1,2}/\d{4})`),
	regexp.MustCompile(`(?i)\b(?:listed|posted|added)(?:\s+on)?\s*[:\-]?\s*(\d{4}-\d{2}-\d{2})`),
}

func dateFromVisibleText(html string) (time.Time, bool) {
	for _, re := range visibleTextRes {
		if m := re.FindStringSubmatch(html); m != nil {
			if t, ok := parseFlexibleDate(m[1]); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

var flexibleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan. 2, 2006",
}

func parseFlexibleDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range flexibleLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
