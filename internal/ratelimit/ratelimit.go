// Package ratelimit implements a per-client windowed rate limiter.
// Thread-safe. No background goroutines — windows roll over lazily on each
// Check call, and stale windows are pruned opportunistically.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures one limiter. Max 0 means unlimited (Check always allows).
type Config struct {
	Window time.Duration // Length of the counting window.
	Max    int           // Requests allowed per window per client.
}

// Decision is the outcome of one Check call.
type Decision struct {
	Allowed bool
	// Remaining is how long until the client's window resets. Zero when
	// allowed; positive when rejected, for the Retry-After header.
	Remaining time.Duration
}

// Limiter counts requests per client in windows anchored at each client's
// first request. Each client gets an independent window; one client cannot
// exhaust another's quota.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	cfg     Config
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewLimiter creates a limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		clients: make(map[string]*window),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Check records a request for clientID and reports whether it is allowed.
// The request counts against the window only when allowed; rejected requests
// do not extend the lockout.
func (l *Limiter) Check(clientID string) Decision {
	if l.cfg.Max <= 0 {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[clientID]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		l.clients[clientID] = &window{start: now, count: 1}
		l.pruneLocked(now)
		return Decision{Allowed: true}
	}

	if w.count >= l.cfg.Max {
		return Decision{
			Allowed:   false,
			Remaining: w.start.Add(l.cfg.Window).Sub(now),
		}
	}
	w.count++
	return Decision{Allowed: true}
}

// pruneLocked drops expired windows to bound the map. Called with l.mu held,
// only on the window-rollover path so the hot path stays a single map lookup.
func (l *Limiter) pruneLocked(now time.Time) {
	if len(l.clients) < 1024 {
		return
	}
	for id, w := range l.clients {
		if now.Sub(w.start) >= l.cfg.Window {
			delete(l.clients, id)
		}
	}
}

// RetryAfterSeconds converts a rejection's remaining duration to the integer
// seconds value for the Retry-After header, rounding up so clients never
// retry inside the window.
func RetryAfterSeconds(remaining time.Duration) int {
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
