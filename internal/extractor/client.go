// Package extractor presents a single uniform extraction result to the
// pipeline, whichever backend produced it: a remote renderer reached
// over HTTP, or the local fetch+parse fallback.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dealerscan/internal/models"
)

// ErrUnavailable marks an extractor whose endpoint is not configured.
var ErrUnavailable = errors.New("extractor endpoint not configured")

// Cascade step labels, propagated into snapshot metadata.
const (
	MethodPrimary    = "primary"
	MethodSecondary  = "secondary"
	MethodHTMLParser = "html_parser"
	MethodMixed      = "mixed"
)

const defaultTimeout = 120 * time.Second

// Request is the renderer wire request.
type Request struct {
	URL              string `json:"url"`
	UseCachedPattern bool   `json:"useCachedPattern,omitempty"`
	MaxPages         int    `json:"maxPages,omitempty"`
}

// Response is the uniform extraction result.
type Response struct {
	Success      bool
	Vehicles     []models.ParsedVehicle
	Tier         string
	Confidence   string
	PagesScraped int
	DurationMS   int64

	// Method names the cascade step that produced the result: primary,
	// secondary, or html_parser.
	Method string
	// HTML carries the fetched page when Method is html_parser, so the
	// listing-date resolver can reuse it without a second fetch.
	HTML string
}

// wireResponse mirrors the renderer JSON contract.
type wireResponse struct {
	Success      bool          `json:"success"`
	Vehicles     []wireVehicle `json:"vehicles"`
	Tier         string        `json:"tier"`
	Confidence   string        `json:"confidence"`
	PagesScraped int           `json:"pagesScraped"`
	Duration     int64         `json:"duration"`
	Error        string        `json:"error"`
}

type wireVehicle struct {
	Year        int    `json:"year"`
	Make        string `json:"make"`
	Model       string `json:"model"`
	Trim        string `json:"trim"`
	Color       string `json:"color"`
	Price       int    `json:"price"`
	Mileage     int    `json:"mileage"`
	VIN         string `json:"vin"`
	StockNumber string `json:"stock_number"`
	ImageURL    string `json:"image_url"`
	DetailURL   string `json:"detail_url"`
	ListingDate string `json:"listing_date"`
}

// Client posts extraction requests to one remote renderer endpoint.
type Client struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a renderer client. An empty endpoint is allowed and
// makes every Extract return ErrUnavailable, which the cascade skips.
func NewClient(name, endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		name:       name,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

// Extract posts the page URL to the renderer and maps the wire response.
// A response with success=false is returned as an error carrying the
// service's own message.
func (c *Client) Extract(ctx context.Context, pageURL string) (*Response, error) {
	if !c.Configured() {
		return nil, ErrUnavailable
	}

	body, err := json.Marshal(Request{URL: pageURL})
	if err != nil {
		return nil, fmt.Errorf("failed to encode extractor request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build extractor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s extractor: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s extractor returned status %d", c.name, resp.StatusCode)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode %s extractor response: %w", c.name, err)
	}
	if !wire.Success {
		msg := wire.Error
		if msg == "" {
			msg = "no detail given"
		}
		return nil, fmt.Errorf("%s extractor unsuccessful: %s", c.name, msg)
	}

	out := &Response{
		Success:      true,
		Tier:         wire.Tier,
		Confidence:   wire.Confidence,
		PagesScraped: wire.PagesScraped,
		DurationMS:   wire.Duration,
		Method:       c.name,
	}
	for _, wv := range wire.Vehicles {
		out.Vehicles = append(out.Vehicles, wv.toModel())
	}
	return out, nil
}

func (wv wireVehicle) toModel() models.ParsedVehicle {
	v := models.ParsedVehicle{
		VIN:         strings.ToUpper(strings.TrimSpace(wv.VIN)),
		StockNumber: strings.TrimSpace(wv.StockNumber),
		Year:        wv.Year,
		Make:        wv.Make,
		Model:       wv.Model,
		Trim:        wv.Trim,
		Color:       wv.Color,
		Mileage:     wv.Mileage,
		Price:       wv.Price,
		URL:         wv.DetailURL,
		ImageURL:    wv.ImageURL,
		ListingDate: wv.ListingDate,
	}
	if v.ImageURL != "" {
		v.ImageURLs = []string{v.ImageURL}
	}
	return v
}
