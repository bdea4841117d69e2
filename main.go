package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dealerscan/internal/api"
	"dealerscan/internal/config"
	"dealerscan/internal/eventbus"
	"dealerscan/internal/extractor"
	"dealerscan/internal/fetch"
	"dealerscan/internal/listingdate"
	"dealerscan/internal/reconcile"
	"dealerscan/internal/repository"
	"dealerscan/internal/scheduler"
	"dealerscan/internal/scrape"
	"dealerscan/internal/sitemap"
	"dealerscan/internal/vindecode"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	// 1. Config
	// .env is optional; deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Initializing DealerScan Engine (build %s)...", BuildCommit)
	log.Printf("DB: %s", redactDatabaseURL(cfg.DatabaseURL))
	log.Printf("API Port: %d", cfg.APIPort)
	if cfg.Extractor.PrimaryURL == "" && cfg.Extractor.SecondaryURL == "" {
		log.Println("No extractor services configured; running on the HTML parser only")
	}

	// 2. Dependencies
	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer repo.Close()

	// 2a. Auto-Migration (skip with SKIP_MIGRATION=true when another
	// instance owns the schema)
	if os.Getenv("SKIP_MIGRATION") == "true" {
		log.Println("Database Migration SKIPPED (SKIP_MIGRATION=true)")
	} else {
		log.Println("Running Database Migration...")
		if err := repo.Migrate("schema.sql"); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Database Migration Complete.")
	}

	// 3. Services
	bus := eventbus.New()
	defer bus.Close()

	fetcher := fetch.New(fetch.Options{
		MaxRetries:   cfg.Fetch.MaxRetries,
		InitialDelay: cfg.Fetch.InitialDelay(),
		MaxDelay:     cfg.Fetch.MaxDelay(),
		Timeout:      cfg.Fetch.Timeout(),
		RateLimit:    cfg.Fetch.RateLimit(),
		Validate:     true,
	})

	primary := extractor.NewClient("primary", cfg.Extractor.PrimaryURL, cfg.Extractor.Timeout())
	secondary := extractor.NewClient("secondary", cfg.Extractor.SecondaryURL, cfg.Extractor.Timeout())
	cascade := extractor.NewCascade(primary, secondary, fetcher)

	sitemaps := sitemap.NewService(fetcher, repo, cfg.Sitemap.TTL())
	decoder := vindecode.NewClient(cfg.VINDecodeURL)
	engine := reconcile.NewEngine(repo, listingdate.NewResolver(), bus,
		time.Duration(cfg.Reconcile.SoldAbsenceDays)*24*time.Hour)

	pipeline := scrape.New(scrape.Deps{
		Store:       repo,
		Fetcher:     fetcher,
		Extractor:   cascade,
		Sitemaps:    sitemaps,
		Reconciler:  engine,
		Decoder:     decoder,
		Bus:         bus,
		Concurrency: cfg.Detail.Concurrency,
	})

	dispatcher := scheduler.New(repo, pipeline, cfg.Dispatcher.Budget())
	apiServer := api.NewServer(cfg, repo, dispatcher, pipeline, bus)

	// 4. Run
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API Server failed: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("API Server shutdown: %v", err)
	}
}

func redactDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" {
		if u.User != nil {
			user := u.User.Username()
			if user == "" {
				user = "user"
			}
			u.User = url.UserPassword(user, "****")
		}
		// Query params can embed secrets too; keep scheme/host/path only.
		u.RawQuery = ""
		return u.String()
	}

	// Best-effort fallback for DSN-style strings.
	re := regexp.MustCompile(`(?i)(postgres(?:ql)?://[^:/?#]+):([^@]+)@`)
	if re.MatchString(raw) {
		return re.ReplaceAllString(raw, `$1:****@`)
	}
	re = regexp.MustCompile(`(?i)(password=)(\S+)`)
	return re.ReplaceAllString(raw, `$1****`)
}
