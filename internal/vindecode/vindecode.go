// Package vindecode fills missing year/make/model/trim for a listing
// from its VIN via the public NHTSA vPIC decode service.
package vindecode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dealerscan/internal/models"
	"dealerscan/internal/parser"
)

// ErrMalformedVIN rejects input that is not a 17-character VIN over the
// allowed alphabet.
var ErrMalformedVIN = errors.New("malformed vin")

const (
	defaultBaseURL = "https://vpic.nhtsa.dot.gov/api/vehicles"
	requestTimeout = 10 * time.Second
)

// Decoded holds the attributes the decode service resolved. Zero values
// mean the service had no answer for that attribute.
type Decoded struct {
	Year  int
	Make  string
	Model string
	Trim  string
}

// Client calls the decode service. One attempt per VIN, no retries; a
// decode is an enrichment, never a dependency.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// vpicResponse is the tabular attribute list the service returns.
type vpicResponse struct {
	Results []struct {
		Variable string `json:"Variable"`
		Value    string `json:"Value"`
	} `json:"Results"`
}

// Decode resolves a VIN. Service absence, non-2xx statuses, and
// responses that decode nothing useful all come back as errors.
func (c *Client) Decode(ctx context.Context, vin string) (*Decoded, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if !parser.IsValidVIN(vin) {
		return nil, ErrMalformedVIN
	}

	url := fmt.Sprintf("%s/DecodeVin/%s?format=json", c.baseURL, vin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build decode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call vin decode service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("vin decode service returned status %d", resp.StatusCode)
	}

	var wire vpicResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode vin response: %w", err)
	}

	d := &Decoded{}
	for _, r := range wire.Results {
		value := strings.TrimSpace(r.Value)
		if value == "" {
			continue
		}
		switch r.Variable {
		case "Model Year":
			if y, err := strconv.Atoi(value); err == nil {
				d.Year = y
			}
		case "Make":
			d.Make = properCase(value)
		case "Model":
			d.Model = value
		case "Trim":
			d.Trim = value
		}
	}
	if d.Year == 0 && d.Make == "" && d.Model == "" {
		return nil, fmt.Errorf("vin %s decoded to nothing", vin)
	}
	return d, nil
}

// Enrich copies decoded attributes into the listing, filling only the
// fields the parse left empty.
func Enrich(v *models.ParsedVehicle, d *Decoded) {
	if v == nil || d == nil {
		return
	}
	if v.Year == 0 {
		v.Year = d.Year
	}
	if v.Make == "" {
		v.Make = d.Make
	}
	if v.Model == "" {
		v.Model = d.Model
	}
	if v.Trim == "" {
		v.Trim = d.Trim
	}
}

// properCase tames the service's SHOUTING make names, keeping short
// marque initialisms as they are.
func properCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) <= 3 && w == strings.ToUpper(w) {
			continue // BMW, GMC, RAM
		}
		lower := strings.ToLower(w)
		words[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(words, " ")
}
