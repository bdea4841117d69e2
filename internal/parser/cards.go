package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dealerscan/internal/listingdate"
	"dealerscan/internal/models"
)

// Container tags a vehicle card can live in.
var cardContainerTags = map[string]bool{
	"div": true, "article": true, "li": true, "section": true,
}

var (
	priceTokenRe   = regexp.MustCompile(`\$\s?\d`)
	mileageTokenRe = regexp.MustCompile(`(?i)\d[\d,\.]*\s*(?:mi|miles|km)\b`)
	hrefMarkerRe   = regexp.MustCompile(`(?i)/vehicle|/inventory/|/cars/|/used-|-for-sale|/detail|\d`)
	tagRe          = regexp.MustCompile(`<[^>]*>`)
	sectionOpenRe  = regexp.MustCompile(`(?i)<(?:div|article|li|section)\b`)
	anchorHrefRe   = regexp.MustCompile(`(?i)<a\b[^>]*\bhref\s*=\s*["']([^"']+)["']`)
)

// vehiclesFromCards implements the vehicle-card strategy: candidate
// links are located, then each is parsed strictly inside its nearest
// enclosing card so that adjacent listings cannot bleed into each other.
func vehiclesFromCards(doc *goquery.Document, baseURL string) []models.ParsedVehicle {
	var out []models.ParsedVehicle
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !isVehicleLink(href, link.Text()) {
			return
		}
		card := nearestEnclosingBlock(link)
		if card == nil {
			return
		}
		cardHTML, err := goquery.OuterHtml(card)
		if err != nil {
			return
		}
		// stripTags keeps a space where every tag was, so values from
		// adjacent elements cannot run together.
		v := vehicleFromContainer(cardHTML, stripTags(cardHTML), baseURL)
		v.URL = resolveOrKeep(href, baseURL)
		if isUsableVehicle(v) {
			out = append(out, v)
		}
	})
	return out
}

// isVehicleLink heuristically marks an anchor as pointing at a vehicle
// detail page: plausible year or known make in the link text, or a
// vehicle-ish href. Bare anchors and search links are rejected.
func isVehicleLink(href, text string) bool {
	href = strings.TrimSpace(href)
	switch {
	case href == "" || href == "#" || href == "/":
		return false
	case strings.HasPrefix(href, "javascript:"):
		return false
	case strings.HasPrefix(strings.ToLower(href), "/search"),
		strings.Contains(strings.ToLower(href), "/search?"):
		return false
	}
	if extractYear(text) != 0 || containsMake(text) {
		return true
	}
	return hrefMarkerRe.MatchString(strings.ToLower(href))
}

// nearestEnclosingBlock walks up the ancestor chain and returns the
// closest div/article/li/section whose content carries vehicle-like
// tokens (a year, a price, or a mileage figure). Nil when no ancestor
// qualifies; the caller drops the candidate rather than parse the whole
// page and risk mixing adjacent listings.
func nearestEnclosingBlock(sel *goquery.Selection) *goquery.Selection {
	for p := sel.Parent(); p.Length() > 0; p = p.Parent() {
		name := goquery.NodeName(p)
		if name == "body" || name == "html" || name == "#document" {
			return nil
		}
		if cardContainerTags[name] && hasVehicleTokens(p.Text()) {
			return p
		}
	}
	return nil
}

func hasVehicleTokens(text string) bool {
	return yearRe.MatchString(text) ||
		priceTokenRe.MatchString(text) ||
		mileageTokenRe.MatchString(text)
}

// vehicleFromContainer runs the attribute extractors scoped to one
// container. text drives the textual fields; html is consulted for VIN
// attributes and images.
func vehicleFromContainer(html, text, baseURL string) models.ParsedVehicle {
	v := models.ParsedVehicle{
		VIN:         extractVIN(text, html),
		StockNumber: extractStock(text),
		Year:        extractYear(text),
		Price:       extractPrice(text),
		Mileage:     extractMileage(text),
		Color:       extractColor(text),
	}
	if mk, end := findMake(text); mk != "" {
		v.Make = mk
		v.Model = extractModel(text, end)
	}
	if imgs := extractImages(html, baseURL); len(imgs) > 0 {
		v.ImageURL = imgs[0]
		v.ImageURLs = imgs
		v.ImageDate = listingdate.ExtractImageDate(imgs)
	}
	return v
}

// vehiclesFromSections implements the generic-section strategy over the
// raw HTML: segment at container openers, keep segments carrying both a
// year and a make, extract within each segment.
func vehiclesFromSections(html, baseURL string) []models.ParsedVehicle {
	locs := sectionOpenRe.FindAllStringIndex(html, -1)
	var out []models.ParsedVehicle
	for i, loc := range locs {
		end := len(html)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segment := html[loc[0]:end]
		text := stripTags(segment)
		if extractYear(text) == 0 || !containsMake(text) {
			continue
		}
		v := vehicleFromContainer(segment, text, baseURL)
		if href := firstSubmatch(anchorHrefRe, segment); href != "" {
			v.URL = resolveOrKeep(href, baseURL)
		}
		if isUsableVehicle(v) {
			out = append(out, v)
		}
	}
	return out
}

func stripTags(html string) string {
	return tagRe.ReplaceAllString(html, " ")
}
