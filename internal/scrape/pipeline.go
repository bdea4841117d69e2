// Package scrape runs the per-tenant inventory pipeline: discover
// candidate inventory pages on the dealer site, extract listings through
// the renderer cascade, complete thin listings from their detail pages
// and VIN decode, then hand the full set to reconciliation. A reduced
// variant scans competitor sites into aggregate statistics.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dealerscan/internal/eventbus"
	"dealerscan/internal/extractor"
	"dealerscan/internal/fetch"
	"dealerscan/internal/models"
	"dealerscan/internal/reconcile"
	"dealerscan/internal/vindecode"
)

// Store is the slice of persistence the pipeline writes directly: run
// markers, durable logs, and competitor aggregates. Vehicle and sales
// writes happen inside the reconciliation engine.
type Store interface {
	InsertSnapshot(ctx context.Context, snap *models.InventorySnapshot) error
	UpdateSnapshot(ctx context.Context, snap *models.InventorySnapshot) error
	InsertScrapingLog(ctx context.Context, entry *models.ScrapingLog) error
	UpsertCompetitorSnapshot(ctx context.Context, snap *models.CompetitorSnapshot) error
	InsertCompetitorScan(ctx context.Context, rec *models.CompetitorScanRecord) error
}

// Extractor runs the renderer cascade for one candidate URL. Satisfied
// by *extractor.Cascade.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (*extractor.Response, error)
}

// Reconciler is satisfied by *reconcile.Engine.
type Reconciler interface {
	Reconcile(ctx context.Context, tenantID string, in reconcile.Input) (*reconcile.Outcome, error)
}

// SitemapIndex is satisfied by *sitemap.Service.
type SitemapIndex interface {
	Lookup(ctx context.Context, tenantID, website string) (map[string]string, error)
}

// VINDecoder is satisfied by *vindecode.Client.
type VINDecoder interface {
	Decode(ctx context.Context, vin string) (*vindecode.Decoded, error)
}

const defaultConcurrency = 5

const (
	levelInfo  = "info"
	levelWarn  = "warn"
	levelError = "error"
)

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Store      Store
	Fetcher    *fetch.Fetcher
	Extractor  Extractor
	Sitemaps   SitemapIndex
	Reconciler Reconciler
	Decoder    VINDecoder    // optional; VIN enrichment is skipped when nil
	Bus        *eventbus.Bus // optional

	// Concurrency bounds outstanding HTTP work during candidate and
	// detail fan-out. Defaults to 5.
	Concurrency int
}

// Pipeline orchestrates one tenant run end to end.
type Pipeline struct {
	store       Store
	fetcher     *fetch.Fetcher
	extractor   Extractor
	sitemaps    SitemapIndex
	reconciler  Reconciler
	decoder     VINDecoder
	bus         *eventbus.Bus
	concurrency int
	now         func() time.Time
}

func New(d Deps) *Pipeline {
	if d.Concurrency <= 0 {
		d.Concurrency = defaultConcurrency
	}
	return &Pipeline{
		store:       d.Store,
		fetcher:     d.Fetcher,
		extractor:   d.Extractor,
		sitemaps:    d.Sitemaps,
		reconciler:  d.Reconciler,
		decoder:     d.Decoder,
		bus:         d.Bus,
		concurrency: d.Concurrency,
		now:         time.Now,
	}
}

// Result summarizes one tenant run. Err is set when the run ended in
// status failed; per-vehicle write failures leave Err nil and mark the
// run partial instead.
type Result struct {
	TenantID      string
	SnapshotID    string
	Status        string
	VehiclesFound int
	New           int
	Updated       int
	PriceChanged  int
	Sold          int
	Method        string
	Tier          string
	Confidence    string
	DurationMS    int64
	Err           error
}

// Run executes the inventory pipeline for one tenant. It always returns
// a Result and always leaves exactly one snapshot row behind (unless
// even that write fails). Per-URL and per-vehicle problems are logged
// and recovered; only setup-level failures end the run.
func (p *Pipeline) Run(ctx context.Context, tenant *models.Tenant) *Result {
	start := p.now()
	res := &Result{TenantID: tenant.ID, Status: models.SnapshotStatusFailed}

	snap := &models.InventorySnapshot{
		ID:        uuid.NewString(),
		TenantID:  tenant.ID,
		StartedAt: start,
		Status:    models.SnapshotStatusPending,
	}
	if err := p.store.InsertSnapshot(ctx, snap); err != nil {
		p.logRow(ctx, tenant.ID, nil, levelError, "failed to record snapshot", map[string]interface{}{"error": err.Error()})
		res.Err = fmt.Errorf("failed to record snapshot: %w", err)
		res.DurationMS = p.now().Sub(start).Milliseconds()
		return res
	}
	res.SnapshotID = snap.ID
	p.publish(eventbus.TypeRunStarted, tenant.ID, map[string]interface{}{
		"snapshot_id": snap.ID,
		"website":     tenant.Website,
	})

	fail := func(msg string, err error) *Result {
		p.logRow(ctx, tenant.ID, &snap.ID, levelError, msg, map[string]interface{}{"error": err.Error()})
		res.Err = fmt.Errorf("%s: %w", msg, err)
		p.finish(ctx, snap, res, start)
		return res
	}

	// 1. Canonical crawl root.
	website, err := fetch.NormalizeURL(tenant.Website)
	if err != nil {
		return fail("invalid tenant website", err)
	}

	// 2. Candidate inventory pages, root first.
	candidates := p.discover(ctx, website)

	// 3. Extraction cascade per candidate.
	results := p.extractAll(ctx, candidates)
	for _, cr := range results {
		if cr.err != nil {
			p.logRow(ctx, tenant.ID, &snap.ID, levelWarn, "candidate url failed", map[string]interface{}{
				"url":   cr.url,
				"error": cr.err.Error(),
			})
		}
	}
	ext := aggregate(results)
	if len(ext.vehicles) == 0 {
		return fail("every candidate inventory url failed", ext.firstErr)
	}
	res.Method, res.Tier, res.Confidence = ext.method, ext.tier, ext.confidence

	// 4. Complete thin listings: detail pages first, then VIN decode.
	p.enhanceDetails(ctx, tenant.ID, &snap.ID, ext.vehicles, ext.pageHTML)
	p.enrichVINs(ctx, ext.vehicles)
	res.VehiclesFound = len(ext.vehicles)

	// 5. Reconcile against history.
	paths, err := p.sitemaps.Lookup(ctx, tenant.ID, website)
	if err != nil {
		p.logRow(ctx, tenant.ID, &snap.ID, levelWarn, "sitemap lookup failed", map[string]interface{}{"error": err.Error()})
	}
	outcome, err := p.reconciler.Reconcile(ctx, tenant.ID, reconcile.Input{
		Vehicles:     ext.vehicles,
		PageHTML:     ext.pageHTML,
		SitemapPaths: paths,
	})
	if err != nil {
		return fail("reconciliation failed", err)
	}
	res.New, res.Updated, res.PriceChanged, res.Sold = outcome.New, outcome.Updated, outcome.PriceChanged, outcome.Sold

	res.Status = models.SnapshotStatusSuccess
	if outcome.WriteFailures > 0 {
		res.Status = models.SnapshotStatusPartial
	}
	if raw, err := json.Marshal(ext.vehicles); err == nil {
		snap.Raw = raw
	}
	p.logRow(ctx, tenant.ID, &snap.ID, levelInfo, "scrape completed", map[string]interface{}{
		"vehicles_found": res.VehiclesFound,
		"new":            outcome.New,
		"updated":        outcome.Updated,
		"sold":           outcome.Sold,
		"dropped":        outcome.Dropped,
		"write_failures": outcome.WriteFailures,
	})
	p.finish(ctx, snap, res, start)
	return res
}

// finish stamps the snapshot with the run's outcome and announces the
// completed run.
func (p *Pipeline) finish(ctx context.Context, snap *models.InventorySnapshot, res *Result, start time.Time) {
	res.DurationMS = p.now().Sub(start).Milliseconds()
	snap.Status = res.Status
	snap.VehiclesFound = res.VehiclesFound
	snap.DurationMS = res.DurationMS
	snap.ScraperMethod = res.Method
	snap.ScraperTier = res.Tier
	snap.ScraperConfidence = res.Confidence
	if err := p.store.UpdateSnapshot(ctx, snap); err != nil {
		log.Printf("[Pipeline] tenant=%s snapshot update failed: %v", snap.TenantID, err)
	}
	p.publish(eventbus.TypeRunCompleted, snap.TenantID, map[string]interface{}{
		"snapshot_id":    snap.ID,
		"status":         res.Status,
		"vehicles_found": res.VehiclesFound,
		"new":            res.New,
		"updated":        res.Updated,
		"sold":           res.Sold,
		"duration_ms":    res.DurationMS,
	})
}

type candidateResult struct {
	url  string
	resp *extractor.Response
	err  error
}

// extractAll runs the cascade for every candidate with bounded
// concurrency, keeping results in candidate order.
func (p *Pipeline) extractAll(ctx context.Context, candidates []string) []candidateResult {
	results := make([]candidateResult, len(candidates))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, u := range candidates {
		i, u := i, u
		g.Go(func() error {
			resp, err := p.extractor.Extract(ctx, u)
			results[i] = candidateResult{url: u, resp: resp, err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

type extraction struct {
	vehicles   []models.ParsedVehicle
	pageHTML   map[string]string
	method     string
	tier       string
	confidence string
	firstErr   error
}

// aggregate merges per-candidate extractions in candidate order,
// dropping vehicles whose URL was already collected from an earlier
// page. Hub pages overlap; the identifier layer must not see the same
// physical listing twice in one run.
func aggregate(results []candidateResult) extraction {
	ext := extraction{pageHTML: make(map[string]string)}
	methods := make(map[string]bool)
	seenURL := make(map[string]bool)
	for _, cr := range results {
		if cr.err != nil {
			if ext.firstErr == nil {
				ext.firstErr = cr.err
			}
			continue
		}
		methods[cr.resp.Method] = true
		if ext.tier == "" {
			ext.tier = cr.resp.Tier
		}
		if ext.confidence == "" {
			ext.confidence = cr.resp.Confidence
		}
		if cr.resp.HTML != "" {
			ext.pageHTML[cr.url] = cr.resp.HTML
		}
		for _, v := range cr.resp.Vehicles {
			if v.URL != "" {
				if seenURL[v.URL] {
					continue
				}
				seenURL[v.URL] = true
			}
			ext.vehicles = append(ext.vehicles, v)
		}
	}
	switch len(methods) {
	case 0:
	case 1:
		for m := range methods {
			ext.method = m
		}
	default:
		ext.method = extractor.MethodMixed
	}
	return ext
}

// logRow writes one durable log line and mirrors it to the process log.
// Failures to write the row itself are only process-logged.
func (p *Pipeline) logRow(ctx context.Context, tenantID string, snapshotID *string, level, message string, detail map[string]interface{}) {
	log.Printf("[Pipeline] tenant=%s %s: %s", tenantID, level, message)
	entry := &models.ScrapingLog{
		TenantID:   tenantID,
		SnapshotID: snapshotID,
		Level:      level,
		Message:    message,
		CreatedAt:  p.now(),
	}
	if len(detail) > 0 {
		if raw, err := json.Marshal(detail); err == nil {
			entry.Detail = raw
		}
	}
	if err := p.store.InsertScrapingLog(ctx, entry); err != nil {
		log.Printf("[Pipeline] tenant=%s log write failed: %v", tenantID, err)
	}
}

func (p *Pipeline) publish(eventType, tenantID string, data interface{}) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{
		Type:      eventType,
		TenantID:  tenantID,
		Timestamp: p.now(),
		Data:      data,
	})
}
