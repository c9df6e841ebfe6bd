package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
// memory exhaustion from senders rotating identifiers.
const maxTrackedKeys = 4096

// keyLimiter pairs a token-bucket limiter with the time it was last touched,
// so idle keys can be evicted once the tracked-key cap is reached.
type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-key requests-per-minute budget using a
// token-bucket limiter per key (spec §4.1/§4.10: gateway-level rate limiting
// shared across channels, one bucket per sender). Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*keyLimiter
	rpm     int
}

// NewRateLimiter builds a limiter allowing rpm requests per minute per key,
// with a burst of one minute's worth of traffic. rpm <= 0 disables limiting
// entirely (Allow always returns true).
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{entries: make(map[string]*keyLimiter), rpm: rpm}
}

// Allow reports whether key is currently within its rate budget, consuming
// one token if so.
func (r *RateLimiter) Allow(key string) bool {
	if r.rpm <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if len(r.entries) >= maxTrackedKeys {
		r.evictOldest(now)
	}

	kl, ok := r.entries[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.rpm)}
		r.entries[key] = kl
	}
	kl.lastSeen = now
	return kl.limiter.AllowN(now, 1)
}

// evictOldest drops entries untouched for over a minute, or if none qualify,
// a single arbitrary entry, to keep the tracked-key count bounded.
func (r *RateLimiter) evictOldest(now time.Time) {
	for k, kl := range r.entries {
		if now.Sub(kl.lastSeen) >= time.Minute {
			delete(r.entries, k)
		}
	}
	if len(r.entries) >= maxTrackedKeys {
		for k := range r.entries {
			delete(r.entries, k)
			break
		}
	}
}
