// Package scheduler dispatches inventory pipeline runs: one tenant on
// demand, or every eligible tenant in sequence under a wall clock
// budget. It holds no cron state; the periodic entrypoint is driven by
// an external trigger.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"dealerscan/internal/models"
	"dealerscan/internal/scrape"
)

// DefaultBudget bounds an all-tenants run, keeping the invocation
// inside the 120s ceiling of the external trigger.
const DefaultBudget = 100 * time.Second

// TenantStore is the slice of the repository the dispatcher reads.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
}

// Runner runs the inventory pipeline for one tenant. *scrape.Pipeline
// satisfies it.
type Runner interface {
	Run(ctx context.Context, tenant *models.Tenant) *scrape.Result
}

// TenantResult is the per-tenant entry of a dispatch response.
type TenantResult struct {
	Tenant            string `json:"tenant"`
	TenantName        string `json:"tenant_name"`
	Website           string `json:"website"`
	VehiclesFound     int    `json:"vehicles_found"`
	NewVehicles       int    `json:"new_vehicles"`
	UpdatedVehicles   int    `json:"updated_vehicles"`
	SoldVehicles      int    `json:"sold_vehicles"`
	Status            string `json:"status"`
	Error             string `json:"error,omitempty"`
	DurationMS        int64  `json:"duration_ms"`
	ScraperMethod     string `json:"scraper_method,omitempty"`
	ScraperTier       string `json:"scraper_tier,omitempty"`
	ScraperConfidence string `json:"scraper_confidence,omitempty"`
}

// RunSummary is the outcome of one dispatch invocation. Results is not
// part of the marshalled summary object; the API emits it as a sibling
// field of the response envelope.
type RunSummary struct {
	TotalTenants     int            `json:"total_tenants"`
	RequestedTenants int            `json:"requested_tenants"`
	Successful       int            `json:"successful"`
	Failed           int            `json:"failed"`
	TotalVehicles    int            `json:"total_vehicles"`
	DurationMS       int64          `json:"duration_ms"`
	TimedOut         bool           `json:"timed_out"`
	Results          []TenantResult `json:"-"`
}

// Dispatcher runs the pipeline across tenants, strictly one at a time.
// The budget is checked between tenants only and never interrupts the
// run in flight.
type Dispatcher struct {
	store  TenantStore
	runner Runner
	budget time.Duration

	now func() time.Time
}

func New(store TenantStore, runner Runner, budget time.Duration) *Dispatcher {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Dispatcher{store: store, runner: runner, budget: budget, now: time.Now}
}

// Eligible reports whether a tenant participates in all-tenants runs.
func Eligible(t *models.Tenant) bool {
	if t.Status == models.TenantStatusSuspended || t.Status == models.TenantStatusCancelled {
		return false
	}
	return t.Website != ""
}

// RunTenant runs the pipeline for exactly one tenant, with no cap
// beyond the pipeline's own timeouts. Eligibility is not checked.
func (d *Dispatcher) RunTenant(ctx context.Context, tenantID string) (*TenantResult, error) {
	tenant, err := d.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}
	res := d.runner.Run(ctx, tenant)
	tr := buildResult(tenant, res)
	return &tr, nil
}

// RunAll runs the pipeline for every eligible tenant in sequence until
// the budget runs out. Remaining tenants are deferred to the next
// invocation; the summary reports completed vs requested.
func (d *Dispatcher) RunAll(ctx context.Context) (*RunSummary, error) {
	start := d.now()
	deadline := start.Add(d.budget)

	all, err := d.store.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	var eligible []*models.Tenant
	for i := range all {
		if Eligible(&all[i]) {
			eligible = append(eligible, &all[i])
		}
	}
	log.Printf("[Dispatcher] starting run for %d of %d tenants", len(eligible), len(all))

	var results []TenantResult
	timedOut := false
	for i, tenant := range eligible {
		if !d.now().Before(deadline) {
			timedOut = true
			log.Printf("[Dispatcher] budget exhausted, deferring %d tenants", len(eligible)-i)
			break
		}
		res := d.runner.Run(ctx, tenant)
		results = append(results, buildResult(tenant, res))
	}

	sum := Summarize(results, len(eligible), d.now().Sub(start).Milliseconds(), timedOut)
	log.Printf("[Dispatcher] run complete: %d ok, %d failed, %d vehicles in %dms",
		sum.Successful, sum.Failed, sum.TotalVehicles, sum.DurationMS)
	return sum, nil
}

// Summarize builds the envelope counters over a set of results. A run
// counts as failed only when its snapshot does; partial runs scraped
// and reconciled, so they count as successful.
func Summarize(results []TenantResult, requested int, durationMS int64, timedOut bool) *RunSummary {
	sum := &RunSummary{
		TotalTenants:     len(results),
		RequestedTenants: requested,
		DurationMS:       durationMS,
		TimedOut:         timedOut,
		Results:          results,
	}
	for _, r := range results {
		sum.TotalVehicles += r.VehiclesFound
		if r.Status == models.SnapshotStatusFailed {
			sum.Failed++
		} else {
			sum.Successful++
		}
	}
	return sum
}

func buildResult(t *models.Tenant, res *scrape.Result) TenantResult {
	tr := TenantResult{
		Tenant:            t.ID,
		TenantName:        t.Name,
		Website:           t.Website,
		VehiclesFound:     res.VehiclesFound,
		NewVehicles:       res.New,
		UpdatedVehicles:   res.Updated,
		SoldVehicles:      res.Sold,
		Status:            res.Status,
		DurationMS:        res.DurationMS,
		ScraperMethod:     res.Method,
		ScraperTier:       res.Tier,
		ScraperConfidence: res.Confidence,
	}
	if res.Err != nil {
		tr.Error = res.Err.Error()
	}
	return tr
}
