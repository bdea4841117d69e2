package scrape

import (
	"context"
	"fmt"
	"math"
	"sort"

	"dealerscan/internal/eventbus"
	"dealerscan/internal/models"
)

// CompetitorScan runs the reduced pipeline against one competitor URL:
// the same extraction cascade, then aggregate statistics instead of
// reconciliation. The URL is used exactly as given because it is the
// snapshot's uniqueness key; callers normalize before calling.
func (p *Pipeline) CompetitorScan(ctx context.Context, tenantID, competitorURL string) (*models.CompetitorSnapshot, error) {
	resp, err := p.extractor.Extract(ctx, competitorURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract competitor inventory from %s: %w", competitorURL, err)
	}

	now := p.now()
	stats := computeStats(resp.Vehicles)
	snap := &models.CompetitorSnapshot{
		TenantID:        tenantID,
		CompetitorURL:   competitorURL,
		CompetitorStats: stats,
		ScannedAt:       now,
	}
	rec := &models.CompetitorScanRecord{
		TenantID:        tenantID,
		CompetitorURL:   competitorURL,
		CompetitorStats: stats,
		ScannedAt:       now,
	}

	// Snapshot upsert and history append are independent writes; one
	// failing does not stop the other.
	if err := p.store.UpsertCompetitorSnapshot(ctx, snap); err != nil {
		p.logRow(ctx, tenantID, nil, levelError, "competitor snapshot write failed", map[string]interface{}{
			"url":   competitorURL,
			"error": err.Error(),
		})
	}
	if err := p.store.InsertCompetitorScan(ctx, rec); err != nil {
		p.logRow(ctx, tenantID, nil, levelError, "competitor history write failed", map[string]interface{}{
			"url":   competitorURL,
			"error": err.Error(),
		})
	}

	p.publish(eventbus.TypeCompetitorScanned, tenantID, map[string]interface{}{
		"competitor_url": competitorURL,
		"count":          stats.Count,
		"avg_price":      stats.AvgPrice,
	})
	return snap, nil
}

// computeStats aggregates the full parsed set. Zero means unknown for
// price and mileage; unknown values stay out of the averages, extremes,
// and the inventory total.
func computeStats(vehicles []models.ParsedVehicle) models.CompetitorStats {
	stats := models.CompetitorStats{Count: len(vehicles)}
	var priceSum, priceN, mileSum, mileN int
	counts := make(map[string]int)
	for _, v := range vehicles {
		if v.Price > 0 {
			priceSum += v.Price
			priceN++
			if stats.MinPrice == 0 || v.Price < stats.MinPrice {
				stats.MinPrice = v.Price
			}
			if v.Price > stats.MaxPrice {
				stats.MaxPrice = v.Price
			}
		}
		if v.Mileage > 0 {
			mileSum += v.Mileage
			mileN++
			if stats.MinMileage == 0 || v.Mileage < stats.MinMileage {
				stats.MinMileage = v.Mileage
			}
			if v.Mileage > stats.MaxMileage {
				stats.MaxMileage = v.Mileage
			}
		}
		if v.Make != "" {
			counts[v.Make]++
		}
	}
	stats.TotalInventoryValue = priceSum
	if priceN > 0 {
		stats.AvgPrice = int(math.Round(float64(priceSum) / float64(priceN)))
	}
	if mileN > 0 {
		stats.AvgMileage = int(math.Round(float64(mileSum) / float64(mileN)))
	}
	stats.TopMakes = topMakes(counts, 5)
	return stats
}

// topMakes ranks makes by count descending, ties alphabetically.
func topMakes(counts map[string]int, n int) []models.MakeCount {
	ranked := make([]models.MakeCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, models.MakeCount{Make: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Make < ranked[j].Make
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
