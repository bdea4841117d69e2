package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dealerscan/internal/fetch"
	"dealerscan/internal/models"
)

func TestParseRobots(t *testing.T) {
	body := []byte("User-agent: *\nDisallow: /admin\nSitemap: https://dealer.com/sitemap.xml\nsitemap:   https://dealer.com/inventory-sitemap.xml  \n")
	got := parseRobots(body)
	want := []string{"https://dealer.com/sitemap.xml", "https://dealer.com/inventory-sitemap.xml"}
	if len(got) != len(want) {
		t.Fatalf("parseRobots returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsVehicleURL(t *testing.T) {
	tests := []struct {
		loc  string
		want bool
	}{
		{"https://dealer.com/inventory/2021-ford-f150", true},
		{"https://dealer.com/vehicle/123", true},
		{"https://dealer.com/used-honda-accord-for-sale", true},
		{"https://dealer.com/cars/camry", true},
		{"https://dealer.com/stock/ABC123", true},
		{"https://dealer.com/blog/inventory-tips", false},   // excluded marker wins
		{"https://dealer.com/inventory/search?q=ford", false},
		{"https://dealer.com/about", false},
		{"https://dealer.com/", false},
	}
	for _, tt := range tests {
		if got := isVehicleURL(tt.loc); got != tt.want {
			t.Errorf("isVehicleURL(%q) = %v, want %v", tt.loc, got, tt.want)
		}
	}
}

func TestParseDocument(t *testing.T) {
	urlset := []byte(`<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://dealer.com/inventory/a</loc><lastmod>2025-06-01</lastmod></url>
  <url><loc>https://dealer.com/inventory/b</loc></url>
</urlset>`)
	entries, isIndex, err := parseDocument(urlset)
	if err != nil || isIndex {
		t.Fatalf("urlset parse: entries=%v isIndex=%v err=%v", entries, isIndex, err)
	}
	if len(entries) != 2 || entries[0].LastMod != "2025-06-01" {
		t.Errorf("unexpected entries %+v", entries)
	}

	index := []byte(`<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://dealer.com/inventory-sitemap.xml</loc></sitemap>
</sitemapindex>`)
	entries, isIndex, err = parseDocument(index)
	if err != nil || !isIndex {
		t.Fatalf("index parse: entries=%v isIndex=%v err=%v", entries, isIndex, err)
	}
	if len(entries) != 1 {
		t.Errorf("unexpected children %+v", entries)
	}

	if _, _, err := parseDocument([]byte("not xml at all <<<")); err == nil {
		t.Error("expected error for malformed xml")
	}
}

type fakeStore struct {
	mu   sync.Mutex
	row  *models.SitemapCache
	puts int
}

func (f *fakeStore) GetSitemapCache(ctx context.Context, tenantID string) (*models.SitemapCache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.row, nil
}

func (f *fakeStore) UpsertSitemapCache(ctx context.Context, cache *models.SitemapCache) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.row = cache
	f.puts++
	return nil
}

type countingMux struct {
	mu    sync.Mutex
	hits  map[string]int
	inner http.Handler
}

func (c *countingMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.hits[r.URL.Path]++
	c.mu.Unlock()
	c.inner.ServeHTTP(w, r)
}

func (c *countingMux) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.hits {
		n += v
	}
	return n
}

func newSitemapSite(t *testing.T) (*httptest.Server, *countingMux) {
	t.Helper()
	mux := http.NewServeMux()
	counter := &countingMux{hits: make(map[string]int), inner: mux}
	srv := httptest.NewServer(counter)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nSitemap: %s/sitemap_index.xml\n", srv.URL)
	})
	mux.HandleFunc("/sitemap_index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex>
  <sitemap><loc>%s/inventory-sitemap.xml</loc></sitemap>
  <sitemap><loc>%s/blog-sitemap.xml</loc></sitemap>
</sitemapindex>`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/inventory-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset>
  <url><loc>%s/inventory/2021-ford-f150</loc><lastmod>2025-07-01</lastmod></url>
  <url><loc>%s/vehicle/123</loc><lastmod>2025-07-15T10:00:00Z</lastmod></url>
  <url><loc>%s/inventory/search</loc><lastmod>2025-07-01</lastmod></url>
  <url><loc>%s/financing</loc><lastmod>2025-07-01</lastmod></url>
</urlset>`, srv.URL, srv.URL, srv.URL, srv.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return srv, counter
}

func testFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Options{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Timeout:      2 * time.Second,
	})
}

func TestServiceLookupAndCache(t *testing.T) {
	srv, counter := newSitemapSite(t)
	store := &fakeStore{}
	svc := NewService(testFetcher(), store, 24*time.Hour)

	paths, err := svc.Lookup(context.Background(), "t1", srv.URL)
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths (%v), want 2", len(paths), paths)
	}
	if paths["/inventory/2021-ford-f150"] != "2025-07-01" {
		t.Errorf("lastmod = %q, want 2025-07-01", paths["/inventory/2021-ford-f150"])
	}
	if paths["/vehicle/123"] != "2025-07-15T10:00:00Z" {
		t.Errorf("lastmod = %q, want full timestamp", paths["/vehicle/123"])
	}
	if store.row == nil || store.row.FetchStatus != StatusSuccess || store.row.URLCount != 2 {
		t.Errorf("cached row = %+v, want success with 2 urls", store.row)
	}

	// Second lookup is served from cache: no additional HTTP traffic.
	before := counter.total()
	again, err := svc.Lookup(context.Background(), "t1", srv.URL)
	if err != nil {
		t.Fatalf("second Lookup error: %v", err)
	}
	if len(again) != 2 {
		t.Errorf("cached lookup returned %d paths, want 2", len(again))
	}
	if counter.total() != before {
		t.Errorf("cached lookup made %d extra requests", counter.total()-before)
	}
}

func TestServiceCachesNotFound(t *testing.T) {
	mux := http.NewServeMux()
	counter := &countingMux{hits: make(map[string]int), inner: mux}
	srv := httptest.NewServer(counter)
	defer srv.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })

	store := &fakeStore{}
	svc := NewService(testFetcher(), store, 24*time.Hour)

	paths, err := svc.Lookup(context.Background(), "t1", srv.URL)
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("got %v, want empty mapping", paths)
	}
	if store.row == nil || store.row.FetchStatus != StatusNotFound {
		t.Fatalf("cached row = %+v, want not_found", store.row)
	}

	// The failure is cached: no re-probe inside the TTL.
	before := counter.total()
	if _, err := svc.Lookup(context.Background(), "t1", srv.URL); err != nil {
		t.Fatalf("second Lookup error: %v", err)
	}
	if counter.total() != before {
		t.Errorf("cached failure still made %d requests", counter.total()-before)
	}
}

func TestServiceCoalescesConcurrentRefresh(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	counter := &countingMux{hits: make(map[string]int), inner: mux}
	srv := httptest.NewServer(counter)
	defer srv.Close()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprintf(w, "Sitemap: %s/sitemap.xml\n", srv.URL)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset><url><loc>%s/inventory/a</loc><lastmod>2025-07-01</lastmod></url></urlset>`, srv.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })

	store := &fakeStore{}
	svc := NewService(testFetcher(), store, 24*time.Hour)

	var wg sync.WaitGroup
	counts := make([]int, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths, err := svc.Lookup(context.Background(), "t1", srv.URL)
			if err != nil {
				t.Errorf("Lookup %d error: %v", i, err)
			}
			counts[i] = len(paths)
		}()
	}
	// Hold the sitemap fetch open until both lookups are in flight, so
	// the second joins the first's refresh instead of starting its own.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if store.puts != 1 {
		t.Errorf("puts = %d, want 1 coalesced refresh", store.puts)
	}
	if counts[0] != 1 || counts[1] != 1 {
		t.Errorf("lookups returned %v paths, want one each", counts)
	}
}

func TestServiceRefreshAfterExpiry(t *testing.T) {
	srv, counter := newSitemapSite(t)
	store := &fakeStore{}
	svc := NewService(testFetcher(), store, 24*time.Hour)

	if _, err := svc.Lookup(context.Background(), "t1", srv.URL); err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if store.puts != 1 {
		t.Fatalf("puts = %d, want 1", store.puts)
	}

	// Jump the clock past the TTL; the next lookup must refetch.
	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	before := counter.total()
	if _, err := svc.Lookup(context.Background(), "t1", srv.URL); err != nil {
		t.Fatalf("Lookup after expiry error: %v", err)
	}
	if counter.total() == before {
		t.Error("expired cache did not refetch")
	}
	if store.puts != 2 {
		t.Errorf("puts = %d, want 2", store.puts)
	}
}
