package web

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/notepid/twilight_forum/internal/telemetry"
)

const staleThreshold = 10 * time.Minute

// LimiterPool keeps one token bucket per client key.
type LimiterPool struct {
	rate  rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*pooledLimiter
}

type pooledLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterPool creates a pool allowing perSecond requests with the given
// burst per key. clock is injectable for deterministic testing.
func NewLimiterPool(perSecond float64, burst int, clock func() time.Time) *LimiterPool {
	if clock == nil {
		clock = time.Now
	}
	return &LimiterPool{
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      clock,
		limiters: make(map[string]*pooledLimiter),
	}
}

// Allow reports whether key may proceed and, if not, how many seconds it
// should wait.
func (p *LimiterPool) Allow(key string) (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	pl, ok := p.limiters[key]
	if !ok {
		pl = &pooledLimiter{limiter: rate.NewLimiter(p.rate, p.burst)}
		p.limiters[key] = pl
	}
	pl.lastSeen = now

	res := pl.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, 1
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, max(int(math.Ceil(delay.Seconds())), 1)
}

// Cleanup drops limiters that have not been used recently.
func (p *LimiterPool) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for key, pl := range p.limiters {
		if now.Sub(pl.lastSeen) > staleThreshold {
			delete(p.limiters, key)
		}
	}
}

// Len returns the number of tracked keys.
func (p *LimiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.limiters)
}

// RateLimit returns middleware that enforces per-IP limits from pool.
// The metrics parameter is optional; pass nil to skip metric recording.
func RateLimit(pool *LimiterPool, m *telemetry.ForumMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := pool.Allow(clientIP(r))
			if !ok {
				if m != nil {
					m.RecordRateLimitDecision(r.Context(), "denied")
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, errorBody("rate_limited", "too many requests", retryAfter))
				return
			}
			if m != nil {
				m.RecordRateLimitDecision(r.Context(), "allowed")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For is client-controlled; only RemoteAddr is used.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
