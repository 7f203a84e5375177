package frontrun

import (
	"sync"
	"time"
)

const DefaultDedupRetention = 30 * time.Second

// DedupGuard blocks active-execution keys while their pipeline runs and for a
// retention window after it finishes. In-flight keys carry a zero expiry.
type DedupGuard struct {
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

func NewDedupGuard(retention time.Duration) *DedupGuard {
	if retention <= 0 {
		retention = DefaultDedupRetention
	}
	return &DedupGuard{
		retention: retention,
		now:       time.Now,
		expires:   make(map[string]time.Time),
	}
}

// TryAdmit claims key. It returns false while the key is in flight or still
// inside its retention window.
func (g *DedupGuard) TryAdmit(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.expires[key]; ok {
		if exp.IsZero() || now.Before(exp) {
			return false
		}
	}
	g.sweepLocked(now)
	g.expires[key] = time.Time{}
	return true
}

// Release schedules key to expire one retention window from now.
func (g *DedupGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.expires[key]; !ok {
		return
	}
	g.expires[key] = g.now().Add(g.retention)
}

// Sweep drops expired keys and returns how many remain blocked.
func (g *DedupGuard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweepLocked(g.now())
	return len(g.expires)
}

func (g *DedupGuard) sweepLocked(now time.Time) {
	for k, exp := range g.expires {
		if !exp.IsZero() && !now.Before(exp) {
			delete(g.expires, k)
		}
	}
}
