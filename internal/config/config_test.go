package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.MaxRetries != 3 || cfg.Fetch.Timeout() != 30*time.Second {
		t.Errorf("fetch defaults = %+v", cfg.Fetch)
	}
	if cfg.Fetch.RateLimit() != time.Second {
		t.Errorf("rate limit = %v", cfg.Fetch.RateLimit())
	}
	if cfg.Extractor.PrimaryURL != "" || cfg.Extractor.Timeout() != 2*time.Minute {
		t.Errorf("extractor defaults = %+v", cfg.Extractor)
	}
	if cfg.Sitemap.TTL() != 24*time.Hour {
		t.Errorf("sitemap ttl = %v", cfg.Sitemap.TTL())
	}
	if cfg.Dispatcher.Budget() != 100*time.Second {
		t.Errorf("dispatcher budget = %v", cfg.Dispatcher.Budget())
	}
	if cfg.Reconcile.SoldAbsenceDays != 2 || cfg.Detail.Concurrency != 5 {
		t.Errorf("reconcile/detail defaults = %+v / %+v", cfg.Reconcile, cfg.Detail)
	}
	if cfg.APIPort != 8080 {
		t.Errorf("api port = %d", cfg.APIPort)
	}
	if cfg.JWTSecret != "" || cfg.AdminAPIKey != "" {
		t.Error("auth secrets must default empty")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FETCH_MAX_RETRIES", "5")
	t.Setenv("EXTRACTOR_PRIMARY_URL", "https://renderer.internal/extract")
	t.Setenv("DISPATCHER_BUDGET_MS", "30000")
	t.Setenv("PORT", "9090")
	t.Setenv("FETCH_TIMEOUT_MS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.MaxRetries != 5 {
		t.Errorf("max retries = %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Extractor.PrimaryURL != "https://renderer.internal/extract" {
		t.Errorf("primary url = %q", cfg.Extractor.PrimaryURL)
	}
	if cfg.Dispatcher.Budget() != 30*time.Second {
		t.Errorf("budget = %v", cfg.Dispatcher.Budget())
	}
	if cfg.APIPort != 9090 {
		t.Errorf("port = %d", cfg.APIPort)
	}
	// Unparseable numbers keep the default.
	if cfg.Fetch.Timeout() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Fetch.Timeout())
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dealerscan.yml")
	body := []byte(`
database_url: postgres://db.internal:5432/dealerscan
fetch:
  max_retries: 1
  rate_limit_ms: 250
extractor:
  primary_url: https://renderer.file/extract
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	// Environment still wins over the file.
	t.Setenv("EXTRACTOR_PRIMARY_URL", "https://renderer.env/extract")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://db.internal:5432/dealerscan" {
		t.Errorf("database url = %q", cfg.DatabaseURL)
	}
	if cfg.Fetch.MaxRetries != 1 || cfg.Fetch.RateLimit() != 250*time.Millisecond {
		t.Errorf("fetch = %+v", cfg.Fetch)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Fetch.TimeoutMS != 30000 {
		t.Errorf("timeout = %d", cfg.Fetch.TimeoutMS)
	}
	if cfg.Extractor.PrimaryURL != "https://renderer.env/extract" {
		t.Errorf("primary url = %q", cfg.Extractor.PrimaryURL)
	}
}

func TestConfigFileMissing(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yml"))
	if _, err := Load(); err == nil {
		t.Fatal("want error for missing config file")
	}
}
