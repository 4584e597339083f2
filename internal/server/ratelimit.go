package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/flowweave/flowweave-web/internal/logger"
)

const (
	defaultRateLimitRequests = 10
	defaultRateLimitWindow   = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter keeps one token bucket per client address. Each bucket holds
// limit tokens and refills them evenly over window.
type ipLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	refill    rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	if limit <= 0 {
		limit = defaultRateLimitRequests
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		refill:   rate.Every(window / time.Duration(limit)),
		burst:    limit,
		idleTTL:  2 * window,
		now:      time.Now,
	}
}

// middleware answers 429 with Retry-After once a client runs out of tokens.
func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := normalizedClientIP(r)
		wait := l.reserve(ip)
		if wait <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		logger.FromContext(r.Context(), nil).Info("rate limit exceeded",
			zap.String("remote_ip", ip),
			zap.Duration("retry_after", wait),
		)
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	})
}

// reserve takes a token for key and returns zero, or how long the client
// has to wait before the next token. A refused reservation is cancelled so
// it does not push later requests further out.
func (l *ipLimiter) reserve(key string) time.Duration {
	now := l.now()
	lim := l.limiterFor(key, now)

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return l.idleTTL
	}
	wait := res.DelayFrom(now)
	if wait > 0 {
		res.CancelAt(now)
	}
	return wait
}

func (l *ipLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) >= l.idleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.refill, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *ipLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}
