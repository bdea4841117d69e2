package scrape

import (
	"bytes"
	"context"
	"log"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"dealerscan/internal/fetch"
)

// inventoryPathRe matches hrefs whose final path segment looks like an
// inventory hub page. Detail pages (/inventory/12345-ford) do not match.
var inventoryPathRe = regexp.MustCompile(`(?i)/(?:all-)?(?:inventory|used-cars|used-vehicles|used-inventory|pre-?owned(?:-inventory)?|cars-for-sale|vehicles|cars)/?(?:[?#]|$)`)

const maxCandidates = 5

// discover returns the candidate inventory URLs for one site, the
// normalized root first. The homepage is scanned for same-host hub
// links so lots that split inventory across pages are covered. A
// homepage that cannot be fetched is not fatal: the root still goes
// through the full cascade, whose renderers reach sites that block
// plain fetches.
func (p *Pipeline) discover(ctx context.Context, website string) []string {
	candidates := []string{website}
	host, err := fetch.Hostname(website)
	if err != nil {
		return candidates
	}

	res := p.fetcher.Fetch(ctx, website)
	if !res.OK {
		log.Printf("[Pipeline] homepage fetch failed for %s, scraping root only: %v", website, res.Err)
		return candidates
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return candidates
	}

	seen := map[string]bool{website: true}
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !inventoryPathRe.MatchString(href) {
			return true
		}
		abs, err := fetch.ResolveURL(href, website)
		if err != nil {
			return true
		}
		if h, err := fetch.Hostname(abs); err != nil || h != host {
			return true
		}
		if seen[abs] {
			return true
		}
		seen[abs] = true
		candidates = append(candidates, abs)
		return len(candidates) < maxCandidates
	})
	return candidates
}
