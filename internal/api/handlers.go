package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"dealerscan/internal/fetch"
	"dealerscan/internal/models"
	"dealerscan/internal/repository"
	"dealerscan/internal/scheduler"
)

type scrapeRequest struct {
	Tenant string `json:"tenant"`
}

// handleScrape triggers the pipeline: `{}` runs every eligible tenant
// under the dispatcher's wall clock budget, `{"tenant":"x"}` runs just
// that one. Per-tenant results and the run summary come back in one
// envelope.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := principalFrom(r.Context())
	if req.Tenant == "" && !p.admin {
		writeError(w, http.StatusForbidden, "all-tenant scrape requires admin credentials")
		return
	}
	if req.Tenant != "" && !p.allowed(req.Tenant) {
		writeError(w, http.StatusForbidden, "tenant does not match credentials")
		return
	}

	var summary *scheduler.RunSummary
	if req.Tenant != "" {
		res, err := s.dispatcher.RunTenant(r.Context(), req.Tenant)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		summary = scheduler.Summarize([]scheduler.TenantResult{*res}, 1, res.DurationMS, false)
	} else {
		var err error
		summary, err = s.dispatcher.RunAll(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	message := fmt.Sprintf("processed %d of %d tenants", summary.TotalTenants, summary.RequestedTenants)
	if summary.TimedOut {
		message += " (wall clock budget exhausted)"
	}
	results := summary.Results
	if results == nil {
		results = []scheduler.TenantResult{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
		"results": results,
		"summary": summary,
	})
}

type competitorScanRequest struct {
	CompetitorURL string `json:"competitor_url"`
	Tenant        string `json:"tenant"`
}

func (s *Server) handleCompetitorScan(w http.ResponseWriter, r *http.Request) {
	var req competitorScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CompetitorURL == "" {
		writeError(w, http.StatusBadRequest, "competitor_url required")
		return
	}

	p := principalFrom(r.Context())
	tenant := req.Tenant
	if tenant == "" {
		tenant = p.tenantID
	}
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "tenant required")
		return
	}
	if !p.allowed(tenant) {
		writeError(w, http.StatusForbidden, "tenant does not match credentials")
		return
	}

	normalized, err := fetch.NormalizeURL(req.CompetitorURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid competitor_url")
		return
	}

	snap, err := s.scanner.CompetitorScan(r.Context(), tenant, normalized)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("competitor scan failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"snapshot": snap,
	})
}

func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	tenant, code, err := tenantParam(r, true)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	status := r.URL.Query().Get("status")
	switch status {
	case "":
		status = models.VehicleStatusActive
	case "all":
		status = ""
	}

	vehicles, err := s.store.ListVehicles(r.Context(), tenant, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list vehicles")
		return
	}
	if vehicles == nil {
		vehicles = []*models.VehicleHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": vehicles, "count": len(vehicles)})
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	tenant, code, err := tenantParam(r, true)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	identifier := mux.Vars(r)["identifier"]

	v, err := s.store.GetVehicle(r.Context(), tenant, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vehicle not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load vehicle")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": v})
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	tenant, code, err := tenantParam(r, true)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	sales, err := s.store.ListSales(r.Context(), tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sales")
		return
	}
	if sales == nil {
		sales = []models.SalesRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": sales, "count": len(sales)})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	tenant, code, err := tenantParam(r, false)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	snaps, err := s.store.ListSnapshots(r.Context(), tenant, queryInt(r, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snaps == nil {
		snaps = []models.InventorySnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": snaps, "count": len(snaps)})
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	tenant, code, err := tenantParam(r, false)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	snapshot := r.URL.Query().Get("snapshot")
	if tenant == "" && snapshot == "" {
		writeError(w, http.StatusBadRequest, "snapshot or tenant required")
		return
	}

	logs, err := s.store.ListLogs(r.Context(), tenant, snapshot, queryInt(r, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	if logs == nil {
		logs = []models.ScrapingLog{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": logs, "count": len(logs)})
}

func (s *Server) handleListCompetitors(w http.ResponseWriter, r *http.Request) {
	tenant, code, err := tenantParam(r, true)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	snaps, err := s.store.ListCompetitorSnapshots(r.Context(), tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list competitor snapshots")
		return
	}
	if snaps == nil {
		snaps = []models.CompetitorSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": snaps, "count": len(snaps)})
}

func (s *Server) handleCompetitorHistory(w http.ResponseWriter, r *http.Request) {
	tenant, code, err := tenantParam(r, true)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	competitor := r.URL.Query().Get("competitor")
	if competitor != "" {
		// History rows store normalized URLs, so normalize the filter too.
		normalized, err := fetch.NormalizeURL(competitor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid competitor url")
			return
		}
		competitor = normalized
	}

	history, err := s.store.ListCompetitorHistory(r.Context(), tenant, competitor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list competitor history")
		return
	}
	if history == nil {
		history = []models.CompetitorScanRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": history, "count": len(history)})
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
