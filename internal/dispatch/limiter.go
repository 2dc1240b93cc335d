package dispatch

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ConnLimitConfig controls the per-remote-address connection rate limiter.
type ConnLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConnLimitConfig allows a modest burst of connection attempts per
// remote address before throttling.
func DefaultConnLimitConfig() ConnLimitConfig {
	return ConnLimitConfig{RequestsPerSecond: 5, Burst: 10}
}

// AddrLimiter tracks one rate.Limiter per remote address, evicting idle
// entries so the map does not grow unbounded across the channel's lifetime.
type AddrLimiter struct {
	mu     sync.Mutex
	cfg    ConnLimitConfig
	seen   map[string]*addrEntry
}

type addrEntry struct {
	limiter *rate.Limiter
	lastHit time.Time
}

// NewAddrLimiter builds a limiter keyed by remote address.
func NewAddrLimiter(cfg ConnLimitConfig) *AddrLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &AddrLimiter{cfg: cfg, seen: make(map[string]*addrEntry)}
}

// Allow reports whether a new connection attempt from addr should proceed.
func (a *AddrLimiter) Allow(addr string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	e, ok := a.seen[addr]
	if !ok {
		e = &addrEntry{limiter: rate.NewLimiter(rate.Limit(a.cfg.RequestsPerSecond), a.cfg.Burst)}
		a.seen[addr] = e
	}
	e.lastHit = now
	a.evictLocked(now)
	return e.limiter.Allow()
}

// evictLocked drops entries idle for more than ten minutes. Must be called
// with a.mu held.
func (a *AddrLimiter) evictLocked(now time.Time) {
	for addr, e := range a.seen {
		if now.Sub(e.lastHit) > 10*time.Minute {
			delete(a.seen, addr)
		}
	}
}
