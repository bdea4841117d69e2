package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type hostEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// hostGate serializes requests per hostname: one token per interval,
// burst 1, so concurrent goroutines against the same host queue up.
// Idle entries are dropped after ttl to keep the map bounded.
type hostGate struct {
	mu          sync.Mutex
	entries     map[string]*hostEntry
	lastCleanup time.Time

	interval time.Duration
	ttl      time.Duration
}

func newHostGate(interval time.Duration) *hostGate {
	return &hostGate{
		entries:  make(map[string]*hostEntry),
		interval: interval,
		ttl:      15 * time.Minute,
	}
}

func (g *hostGate) wait(ctx context.Context, host string) error {
	if g == nil || g.interval <= 0 {
		return nil
	}

	g.mu.Lock()
	now := time.Now()

	// Periodic cleanup (amortized).
	if g.lastCleanup.IsZero() || now.Sub(g.lastCleanup) > time.Minute {
		for k, v := range g.entries {
			if now.Sub(v.lastSeen) > g.ttl {
				delete(g.entries, k)
			}
		}
		g.lastCleanup = now
	}

	ent := g.entries[host]
	if ent == nil {
		ent = &hostEntry{limiter: rate.NewLimiter(rate.Every(g.interval), 1)}
		g.entries[host] = ent
	}
	ent.lastSeen = now
	g.mu.Unlock()

	return ent.limiter.Wait(ctx)
}
