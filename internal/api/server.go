// Package api exposes the engine over HTTP: scrape triggers, inventory
// and sales reads, competitor endpoints, and a websocket feed of
// pipeline events. Every response body is JSON.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"dealerscan/internal/config"
	"dealerscan/internal/eventbus"
	"dealerscan/internal/models"
	"dealerscan/internal/scheduler"
)

// Store is the slice of the repository the API reads from.
type Store interface {
	Ping(ctx context.Context) error
	CountTenantsByStatus(ctx context.Context) (map[string]int, error)
	ListVehicles(ctx context.Context, tenantID, status string) ([]*models.VehicleHistory, error)
	GetVehicle(ctx context.Context, tenantID, identifier string) (*models.VehicleHistory, error)
	ListSales(ctx context.Context, tenantID string) ([]models.SalesRecord, error)
	ListSnapshots(ctx context.Context, tenantID string, limit int) ([]models.InventorySnapshot, error)
	ListLogs(ctx context.Context, tenantID, snapshotID string, limit int) ([]models.ScrapingLog, error)
	ListCompetitorSnapshots(ctx context.Context, tenantID string) ([]models.CompetitorSnapshot, error)
	ListCompetitorHistory(ctx context.Context, tenantID, competitorURL string) ([]models.CompetitorScanRecord, error)
}

// Dispatcher triggers pipeline runs on demand.
type Dispatcher interface {
	RunTenant(ctx context.Context, tenantID string) (*scheduler.TenantResult, error)
	RunAll(ctx context.Context) (*scheduler.RunSummary, error)
}

// CompetitorScanner turns a competitor site into aggregate stats.
type CompetitorScanner interface {
	CompetitorScan(ctx context.Context, tenantID, competitorURL string) (*models.CompetitorSnapshot, error)
}

type Server struct {
	store      Store
	dispatcher Dispatcher
	scanner    CompetitorScanner
	auth       *authMiddleware
	limiter    *ipLimiter
	hub        *Hub
	cfg        *config.Config
	httpServer *http.Server
	startedAt  time.Time
}

func NewServer(cfg *config.Config, store Store, dispatcher Dispatcher, scanner CompetitorScanner, bus *eventbus.Bus) *Server {
	s := &Server{
		store:      store,
		dispatcher: dispatcher,
		scanner:    scanner,
		auth:       newAuthMiddleware(cfg.JWTSecret, cfg.AdminAPIKey),
		limiter:    newIPLimiter(),
		hub:        newHub(),
		cfg:        cfg,
		startedAt:  time.Now(),
	}
	if bus != nil {
		s.hub.bridge(bus)
	}

	r := mux.NewRouter()
	r.Use(commonMiddleware)
	r.Use(s.rateLimit)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/ws", s.hub.handleWebSocket)

	// OPTIONS is listed so CORS preflights reach commonMiddleware
	// instead of falling through to a 405.
	routes := r.PathPrefix("/api").Subrouter()
	routes.Use(s.auth.middleware)
	routes.HandleFunc("/scrape", s.handleScrape).Methods("POST", "OPTIONS")
	routes.HandleFunc("/competitor/scan", s.handleCompetitorScan).Methods("POST", "OPTIONS")
	routes.HandleFunc("/inventory", s.handleListInventory).Methods("GET", "OPTIONS")
	routes.HandleFunc("/inventory/{identifier}", s.handleGetVehicle).Methods("GET", "OPTIONS")
	routes.HandleFunc("/sales", s.handleListSales).Methods("GET", "OPTIONS")
	routes.HandleFunc("/snapshots", s.handleListSnapshots).Methods("GET", "OPTIONS")
	routes.HandleFunc("/logs", s.handleListLogs).Methods("GET", "OPTIONS")
	routes.HandleFunc("/competitor", s.handleListCompetitors).Methods("GET", "OPTIONS")
	routes.HandleFunc("/competitor/history", s.handleCompetitorHistory).Methods("GET", "OPTIONS")

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: r,
	}
	return s
}

// Start runs the websocket hub and blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	go s.hub.run()
	log.Printf("[API] listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports on the engine itself: database reachability,
// tenant counts, the latest snapshots and the non-secret parts of the
// effective config.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overall := "ok"
	database := "ok"
	if err := s.store.Ping(ctx); err != nil {
		overall = "degraded"
		database = err.Error()
	}
	tenants, err := s.store.CountTenantsByStatus(ctx)
	if err != nil {
		log.Printf("[API] status: failed to count tenants: %v", err)
		tenants = map[string]int{}
	}
	recent, err := s.store.ListSnapshots(ctx, "", 10)
	if err != nil {
		log.Printf("[API] status: failed to list snapshots: %v", err)
	}
	if recent == nil {
		recent = []models.InventorySnapshot{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           overall,
		"database":         database,
		"tenants":          tenants,
		"recent_snapshots": recent,
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"config": map[string]interface{}{
			"primary_extractor":    s.cfg.Extractor.PrimaryURL != "",
			"secondary_extractor":  s.cfg.Extractor.SecondaryURL != "",
			"dispatcher_budget_ms": s.cfg.Dispatcher.WallClockBudgetMS,
			"sold_absence_days":    s.cfg.Reconcile.SoldAbsenceDays,
			"auth_enabled":         s.auth.enabled(),
		},
	})
}
