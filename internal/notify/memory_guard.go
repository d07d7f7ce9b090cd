package notify

import (
	"context"
	"sync"
	"time"

	"github.com/taskhive/taskhive/internal/platform/clock"
)

// MemoryGuard is an in-process Guard backed by a map of expiry times.
// Expired keys are removed lazily on access and in bulk via Sweep.
type MemoryGuard struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]time.Time
}

// NewMemoryGuard creates a MemoryGuard driven by the given clock.
func NewMemoryGuard(clk clock.Clock) *MemoryGuard {
	return &MemoryGuard{
		clock:   clk,
		entries: make(map[string]time.Time),
	}
}

// TrySet implements Guard. It returns true if the key was absent or expired
// and has now been (re)inserted with the given TTL.
func (g *MemoryGuard) TrySet(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if expiresAt, ok := g.entries[key]; ok && now.Before(expiresAt) {
		return false, nil
	}

	g.entries[key] = now.Add(ttl)
	return true, nil
}

// Sweep removes all expired keys and returns how many were dropped. The
// scheduler can call this periodically to bound memory growth between
// accesses.
func (g *MemoryGuard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	dropped := 0
	for key, expiresAt := range g.entries {
		if !now.Before(expiresAt) {
			delete(g.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of keys currently held, including ones that expired
// but have not been swept yet.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
