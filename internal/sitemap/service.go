package sitemap

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"dealerscan/internal/fetch"
	"dealerscan/internal/models"
)

// At most this many sitemap documents (indexes plus children) are
// fetched per refresh.
const maxDocumentsPerRefresh = 10

const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// Store is the slice of persistence the service needs.
type Store interface {
	GetSitemapCache(ctx context.Context, tenantID string) (*models.SitemapCache, error)
	UpsertSitemapCache(ctx context.Context, cache *models.SitemapCache) error
}

// Service resolves a tenant's sitemap index through a 24h cache. Fetch
// failures are cached too so a broken site is not re-probed every run.
// A singleflight.Group coalesces concurrent refreshes for one tenant,
// e.g. a manual scrape overlapping the scheduled run.
type Service struct {
	fetcher *fetch.Fetcher
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
}

func NewService(fetcher *fetch.Fetcher, store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		fetcher: fetcher,
		store:   store,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Lookup returns the tenant's path -> lastmod mapping, refreshing the
// cache when the stored row is missing or expired. A cached error row
// short-circuits to an empty mapping until it expires.
func (s *Service) Lookup(ctx context.Context, tenantID, website string) (map[string]string, error) {
	cached, err := s.store.GetSitemapCache(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cached != nil && s.now().Before(cached.ExpiresAt) {
		if cached.FetchStatus == StatusSuccess {
			return cached.Paths, nil
		}
		return map[string]string{}, nil
	}

	v, err, _ := s.group.Do(tenantID, func() (interface{}, error) {
		row := s.refresh(ctx, tenantID, website)
		if err := s.store.UpsertSitemapCache(ctx, row); err != nil {
			log.Printf("[Sitemap] tenant=%s cache write failed: %v", tenantID, err)
		}
		return row.Paths, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

// refresh discovers and parses the site's sitemaps, always producing a
// storable row.
func (s *Service) refresh(ctx context.Context, tenantID, website string) *models.SitemapCache {
	now := s.now()
	row := &models.SitemapCache{
		TenantID:  tenantID,
		Website:   website,
		Paths:     map[string]string{},
		CachedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	origin, err := originOf(website)
	if err != nil {
		row.FetchStatus = StatusError
		row.ErrorMessage = err.Error()
		return row
	}

	candidates := s.discover(ctx, origin)
	if len(candidates) == 0 {
		log.Printf("[Sitemap] tenant=%s no sitemaps discovered at %s", tenantID, origin)
		row.FetchStatus = StatusNotFound
		return row
	}

	fetched := 0
	anyParsed := false
	for _, loc := range candidates {
		if fetched >= maxDocumentsPerRefresh {
			break
		}
		fetched++

		res := s.fetcher.FetchRaw(ctx, loc)
		if !res.OK {
			log.Printf("[Sitemap] tenant=%s fetch %s failed: %v", tenantID, loc, res.Err)
			continue
		}
		entries, isIndex, err := parseDocument(res.Body)
		if err != nil {
			log.Printf("[Sitemap] tenant=%s %s: %v", tenantID, loc, err)
			continue
		}
		anyParsed = true

		if !isIndex {
			s.collect(row.Paths, entries)
			continue
		}

		// One level of recursion: index -> children.
		for _, child := range entries {
			if fetched >= maxDocumentsPerRefresh {
				break
			}
			if !isInventoryChild(child.Loc) {
				continue
			}
			fetched++
			childRes := s.fetcher.FetchRaw(ctx, child.Loc)
			if !childRes.OK {
				log.Printf("[Sitemap] tenant=%s fetch child %s failed: %v", tenantID, child.Loc, childRes.Err)
				continue
			}
			childEntries, childIsIndex, err := parseDocument(childRes.Body)
			if err != nil || childIsIndex {
				continue
			}
			s.collect(row.Paths, childEntries)
		}
	}

	if !anyParsed {
		row.FetchStatus = StatusError
		row.ErrorMessage = "no sitemap document could be fetched"
		return row
	}

	row.FetchStatus = StatusSuccess
	row.URLCount = len(row.Paths)
	log.Printf("[Sitemap] tenant=%s indexed %d vehicle urls from %d documents", tenantID, row.URLCount, fetched)
	return row
}

func (s *Service) collect(paths map[string]string, entries []xmlEntry) {
	for _, e := range entries {
		if e.Loc == "" || !isVehicleURL(e.Loc) {
			continue
		}
		paths[pathOf(e.Loc)] = e.LastMod
	}
}

// discover gathers candidate sitemap URLs from robots.txt directives and
// HEAD probes of the usual locations.
func (s *Service) discover(ctx context.Context, origin string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(loc string) {
		if loc != "" && !seen[loc] {
			seen[loc] = true
			out = append(out, loc)
		}
	}

	if res := s.fetcher.FetchRaw(ctx, origin+"/robots.txt"); res.OK {
		for _, loc := range parseRobots(res.Body) {
			add(loc)
		}
	}

	for _, p := range commonSitemapPaths {
		probe := origin + p
		if seen[probe] {
			continue
		}
		code, err := s.fetcher.Head(ctx, probe)
		if err == nil && code >= 200 && code < 300 {
			add(probe)
		}
	}
	return out
}
