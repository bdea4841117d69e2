package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	userAgent    = "dealerscan/1.0 (+https://dealerscan.app/bot)"
	maxBodyBytes = 10 << 20
	minBodyBytes = 500
)

// ErrErrorPage marks 200-responses that are really error pages
// (tiny bodies, "page not found" phrasing). Not retried.
var ErrErrorPage = errors.New("error page detected")

// StatusError is a terminal HTTP status: the fetcher does not retry it.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("terminal http status %d", e.Code)
}

var errorPagePhrases = []string{
	"page not found",
	"does not exist",
	"has been removed",
	"no longer available",
	"access denied",
	"forbidden",
}

// Options control retry, pacing, and validation for one fetcher.
type Options struct {
	MaxRetries   int           // total attempts
	InitialDelay time.Duration // backoff base, doubled per attempt
	MaxDelay     time.Duration // backoff cap
	Timeout      time.Duration // per-attempt deadline
	RateLimit    time.Duration // minimum gap between requests to one host
	Validate     bool          // apply the body heuristics on 2xx responses
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Timeout:      30 * time.Second,
		RateLimit:    time.Second,
		Validate:     true,
	}
}

// Result is the tagged outcome of a fetch. The fetcher never returns a
// bare transport error; callers branch on OK/Status/Err.
type Result struct {
	OK       bool
	Status   int
	Body     []byte
	Attempts int
	Err      error
}

// Fetcher performs every outbound page fetch with uniform retry,
// per-host pacing, and response validation.
type Fetcher struct {
	client *http.Client
	gate   *hostGate
	opts   Options
}

func New(opts Options) *Fetcher {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	return &Fetcher{
		client: &http.Client{},
		gate:   newHostGate(opts.RateLimit),
		opts:   opts,
	}
}

// Fetch retrieves url with the fetcher's options, validating 2xx bodies
// when Options.Validate is set.
func (f *Fetcher) Fetch(ctx context.Context, rawurl string) Result {
	return f.do(ctx, rawurl, f.opts.Validate)
}

// FetchRaw retrieves url without body validation. Used for robots.txt
// and sitemap XML, which are legitimately tiny.
func (f *Fetcher) FetchRaw(ctx context.Context, rawurl string) Result {
	return f.do(ctx, rawurl, false)
}

func (f *Fetcher) do(ctx context.Context, rawurl string, validate bool) Result {
	host, err := Hostname(rawurl)
	if err != nil {
		return Result{Err: err}
	}

	var last Result
	for attempt := 1; attempt <= f.opts.MaxRetries; attempt++ {
		last = f.attempt(ctx, rawurl, host, validate)
		last.Attempts = attempt
		if last.OK || !f.retryable(last) {
			return last
		}
		if attempt == f.opts.MaxRetries {
			break
		}
		if err := f.backoff(ctx, attempt); err != nil {
			last.Err = err
			last.Attempts = attempt
			return last
		}
	}
	return last
}

func (f *Fetcher) attempt(ctx context.Context, rawurl, host string, validate bool) Result {
	if err := f.gate.wait(ctx, host); err != nil {
		return Result{Err: fmt.Errorf("rate gate: %w", err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawurl, nil)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrInvalidURL, err)}
	}
	setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("request %s: %w", rawurl, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{Status: resp.StatusCode, Err: &StatusError{Code: resp.StatusCode}}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{Status: resp.StatusCode, Err: fmt.Errorf("read body %s: %w", rawurl, err)}
	}

	if validate {
		if reason := validateBody(body); reason != "" {
			return Result{
				Status: resp.StatusCode,
				Body:   body,
				Err:    fmt.Errorf("%w: %s", ErrErrorPage, reason),
			}
		}
	}

	return Result{OK: true, Status: resp.StatusCode, Body: body}
}

// Head probes url with a short deadline, no retries. The rate gate still
// applies. Used by sitemap discovery.
func (f *Fetcher) Head(ctx context.Context, rawurl string) (int, error) {
	host, err := Hostname(rawurl)
	if err != nil {
		return 0, err
	}
	if err := f.gate.wait(ctx, host); err != nil {
		return 0, fmt.Errorf("rate gate: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, rawurl, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("head %s: %w", rawurl, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// retryable reports whether a failed attempt should be retried:
// network errors, 5xx, and 429. Terminal statuses and rejected bodies
// are returned as-is.
func (f *Fetcher) retryable(r Result) bool {
	if errors.Is(r.Err, ErrErrorPage) || errors.Is(r.Err, ErrInvalidURL) {
		return false
	}
	if r.Status == 0 {
		// Transport-level failure; retry unless the caller is gone.
		return !errors.Is(r.Err, context.Canceled)
	}
	if r.Status == http.StatusTooManyRequests {
		return true
	}
	if r.Status >= 500 {
		return true
	}
	return false
}

func (f *Fetcher) backoff(ctx context.Context, attempt int) error {
	delay := f.opts.InitialDelay << (attempt - 1)
	if delay > f.opts.MaxDelay {
		delay = f.opts.MaxDelay
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

// validateBody applies the error-page heuristics: a sub-500-byte body or
// one carrying a stock error phrase is rejected even under HTTP 200.
func validateBody(body []byte) string {
	if len(body) < minBodyBytes {
		return fmt.Sprintf("body too short (%d bytes)", len(body))
	}
	lower := strings.ToLower(string(body))
	for _, phrase := range errorPagePhrases {
		if strings.Contains(lower, phrase) {
			return fmt.Sprintf("error phrase %q", phrase)
		}
	}
	return ""
}
