package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testOptions() Options {
	return Options{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Timeout:      2 * time.Second,
		RateLimit:    0, // no pacing in unit tests
		Validate:     true,
	}
}

func validHTML() string {
	return "<html><body>" + strings.Repeat("<div>2021 Ford F-150 $37,000</div>", 40) + "</body></html>"
}

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "dealerscan/") {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		w.Write([]byte(validHTML()))
	}))
	defer srv.Close()

	res := New(testOptions()).Fetch(context.Background(), srv.URL)
	if !res.OK {
		t.Fatalf("Fetch failed: %v", res.Err)
	}
	if res.Status != http.StatusOK || res.Attempts != 1 {
		t.Errorf("got status=%d attempts=%d, want 200/1", res.Status, res.Attempts)
	}
	if len(res.Body) < minBodyBytes {
		t.Errorf("body unexpectedly short: %d bytes", len(res.Body))
	}
}

func TestFetchRetriesTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(validHTML()))
	}))
	defer srv.Close()

	res := New(testOptions()).Fetch(context.Background(), srv.URL)
	if !res.OK {
		t.Fatalf("Fetch failed after retries: %v", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
}

func TestFetchRetries429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(validHTML()))
	}))
	defer srv.Close()

	res := New(testOptions()).Fetch(context.Background(), srv.URL)
	if !res.OK || res.Attempts != 2 {
		t.Fatalf("got ok=%v attempts=%d err=%v, want recovery on attempt 2", res.OK, res.Attempts, res.Err)
	}
}

func TestFetchTerminalStatuses(t *testing.T) {
	for _, code := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusGone} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(code)
			}))
			defer srv.Close()

			res := New(testOptions()).Fetch(context.Background(), srv.URL)
			if res.OK {
				t.Fatal("expected failure")
			}
			if res.Status != code {
				t.Errorf("status = %d, want %d", res.Status, code)
			}
			var se *StatusError
			if !errors.As(res.Err, &se) || se.Code != code {
				t.Errorf("err = %v, want StatusError{%d}", res.Err, code)
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Errorf("made %d requests, want 1 (terminal status must not retry)", n)
			}
		})
	}
}

func TestFetchRejectsShortBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(strings.Repeat("x", 400)))
	}))
	defer srv.Close()

	res := New(testOptions()).Fetch(context.Background(), srv.URL)
	if res.OK {
		t.Fatal("expected 400-byte body to be rejected")
	}
	if !errors.Is(res.Err, ErrErrorPage) {
		t.Errorf("err = %v, want ErrErrorPage", res.Err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("made %d requests, want 1 (error pages must not retry)", n)
	}
}

func TestFetchRejectsErrorPhrases(t *testing.T) {
	body := "<html><body>" + strings.Repeat("filler ", 100) + "Sorry, this Page Not Found.</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	res := New(testOptions()).Fetch(context.Background(), srv.URL)
	if res.OK {
		t.Fatal("expected error-phrase body to be rejected")
	}
	if !errors.Is(res.Err, ErrErrorPage) {
		t.Errorf("err = %v, want ErrErrorPage", res.Err)
	}
}

func TestFetchRawSkipsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nSitemap: https://example.com/sitemap.xml\n"))
	}))
	defer srv.Close()

	res := New(testOptions()).FetchRaw(context.Background(), srv.URL)
	if !res.OK {
		t.Fatalf("FetchRaw failed: %v", res.Err)
	}
}

func TestHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	code, err := New(testOptions()).Head(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Head error: %v", err)
	}
	if code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", code)
	}
}

func TestFetchInvalidURL(t *testing.T) {
	res := New(testOptions()).Fetch(context.Background(), "::bad url::")
	if res.OK || !errors.Is(res.Err, ErrInvalidURL) {
		t.Errorf("got ok=%v err=%v, want ErrInvalidURL", res.OK, res.Err)
	}
}

func TestHostGateSpacesRequests(t *testing.T) {
	gate := newHostGate(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := gate.wait(ctx, "dealer.com"); err != nil {
			t.Fatalf("wait error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("three calls completed in %v, want per-host spacing of ~40ms each", elapsed)
	}

	// A different host is not delayed by the first one.
	start = time.Now()
	if err := gate.wait(ctx, "other.com"); err != nil {
		t.Fatalf("wait error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("fresh host delayed %v, want immediate", elapsed)
	}
}
