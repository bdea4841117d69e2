// Backfills listing dates for vehicles stored with the first_scan
// fallback, by re-resolving against the tenant's sitemap index. Rows
// get a real date and provenance when the sitemap knows their page.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"dealerscan/internal/config"
	"dealerscan/internal/fetch"
	"dealerscan/internal/listingdate"
	"dealerscan/internal/models"
	"dealerscan/internal/repository"
	"dealerscan/internal/sitemap"
)

func main() {
	var (
		tenantID string
		dryRun   bool
	)
	flag.StringVar(&tenantID, "tenant", "", "tenant id to backfill (default: all tenants)")
	flag.BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect repository: %v", err)
	}
	defer repo.Close()

	fetcher := fetch.New(fetch.Options{
		MaxRetries:   cfg.Fetch.MaxRetries,
		InitialDelay: cfg.Fetch.InitialDelay(),
		MaxDelay:     cfg.Fetch.MaxDelay(),
		Timeout:      cfg.Fetch.Timeout(),
		RateLimit:    cfg.Fetch.RateLimit(),
		Validate:     true,
	})
	sitemaps := sitemap.NewService(fetcher, repo, cfg.Sitemap.TTL())
	resolver := listingdate.NewResolver()

	ctx := context.Background()
	started := time.Now()

	var tenants []models.Tenant
	if tenantID != "" {
		t, err := repo.GetTenant(ctx, tenantID)
		if err != nil {
			log.Fatalf("failed to load tenant %s: %v", tenantID, err)
		}
		tenants = []models.Tenant{*t}
	} else {
		tenants, err = repo.ListTenants(ctx)
		if err != nil {
			log.Fatalf("failed to list tenants: %v", err)
		}
	}

	checked, updated := 0, 0
	for i := range tenants {
		t := &tenants[i]
		if t.Website == "" {
			continue
		}

		vehicles, err := repo.ListVehiclesByDateSource(ctx, t.ID, listingdate.SourceFirstScan)
		if err != nil {
			log.Printf("[backfill_listing_dates] %s: list failed: %v", t.ID, err)
			continue
		}
		if len(vehicles) == 0 {
			continue
		}

		paths, err := sitemaps.Lookup(ctx, t.ID, t.Website)
		if err != nil || len(paths) == 0 {
			log.Printf("[backfill_listing_dates] %s: no sitemap index (%v), skipping %d rows", t.ID, err, len(vehicles))
			continue
		}

		for _, v := range vehicles {
			checked++
			res := resolver.Resolve(models.ParsedVehicle{URL: v.URL}, "", paths)
			if res.Source == listingdate.SourceFirstScan {
				continue
			}
			if dryRun {
				log.Printf("[backfill_listing_dates] %s/%s: would set %s (%s/%s)",
					t.ID, v.Identifier, res.Date.Format("2006-01-02"), res.Confidence, res.Source)
				updated++
				continue
			}
			if err := repo.UpdateListingDate(ctx, v.ID, res.Date, res.Confidence, res.Source); err != nil {
				log.Printf("[backfill_listing_dates] %s/%s: update failed: %v", t.ID, v.Identifier, err)
				continue
			}
			updated++
		}
	}

	verb := "updated"
	if dryRun {
		verb = "would update"
	}
	log.Printf("[backfill_listing_dates] done in %s: checked %d rows, %s %d",
		time.Since(started).Truncate(time.Millisecond), checked, verb, updated)
}
