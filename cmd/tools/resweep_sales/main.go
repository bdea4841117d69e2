// Runs the disappearance sweep for one tenant immediately instead of
// waiting for its next scheduled run. Useful after fixing a tenant's
// website URL, when stale active rows should convert to sales now.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"dealerscan/internal/config"
	"dealerscan/internal/listingdate"
	"dealerscan/internal/reconcile"
	"dealerscan/internal/repository"
)

func main() {
	var tenantID string
	flag.StringVar(&tenantID, "tenant", "", "tenant id to sweep (required)")
	flag.Parse()
	if tenantID == "" {
		log.Fatal("-tenant is required")
	}

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

	engine := reconcile.NewEngine(repo, listingdate.NewResolver(), nil,
		time.Duration(cfg.Reconcile.SoldAbsenceDays)*24*time.Hour)

	started := time.Now()
	out, err := engine.Resweep(context.Background(), tenantID)
	if err != nil {
		log.Fatalf("[resweep_sales] sweep failed: %v", err)
	}
	log.Printf("[resweep_sales] done in %s: %d sold, %d write failures",
		time.Since(started).Truncate(time.Millisecond), out.Sold, out.WriteFailures)
}
