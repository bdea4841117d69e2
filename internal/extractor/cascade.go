package extractor

import (
	"context"
	"fmt"
	"log"
	"time"

	"dealerscan/internal/fetch"
	"dealerscan/internal/parser"
)

// Cascade tries the remote renderers in order, then falls back to a
// direct fetch and local parse. One cascade serves one candidate
// inventory URL end to end; per-vehicle work happens downstream.
type Cascade struct {
	primary   *Client
	secondary *Client
	fetcher   *fetch.Fetcher
}

func NewCascade(primary, secondary *Client, fetcher *fetch.Fetcher) *Cascade {
	return &Cascade{primary: primary, secondary: secondary, fetcher: fetcher}
}

// Extract runs the cascade: primary renderer, secondary renderer, then
// fetch+parse. A renderer result is used only when it succeeded and
// carried at least one vehicle; anything else moves down a step.
func (c *Cascade) Extract(ctx context.Context, pageURL string) (*Response, error) {
	for _, cl := range []*Client{c.primary, c.secondary} {
		if !cl.Configured() {
			continue
		}
		resp, err := cl.Extract(ctx, pageURL)
		if err != nil {
			log.Printf("[Extractor] %v, trying next tier for %s", err, pageURL)
			continue
		}
		if len(resp.Vehicles) > 0 {
			return resp, nil
		}
		log.Printf("[Extractor] %s returned no vehicles for %s, trying next tier", cl.name, pageURL)
	}
	return c.htmlFallback(ctx, pageURL)
}

func (c *Cascade) htmlFallback(ctx context.Context, pageURL string) (*Response, error) {
	start := time.Now()
	res := c.fetcher.Fetch(ctx, pageURL)
	if !res.OK {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, res.Err)
	}
	html := string(res.Body)
	vehicles, err := parser.ParseInventoryHTML(html, pageURL)
	if err != nil {
		return nil, err
	}
	return &Response{
		Success:      true,
		Vehicles:     vehicles,
		PagesScraped: 1,
		DurationMS:   time.Since(start).Milliseconds(),
		Method:       MethodHTMLParser,
		HTML:         html,
	}, nil
}
