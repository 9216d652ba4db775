package server

import (
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	// limiterCacheSize bounds how many client IPs are tracked at once.
	limiterCacheSize = 1024

	// limiterTTL expires idle per-IP limiters so the cache does not hold
	// dead entries between webhook bursts.
	limiterTTL = time.Hour
)

// ipLimiters hands out one token-bucket limiter per client IP, held in an
// expiring LRU cache.
type ipLimiters struct {
	cache *expirable.LRU[string, *rate.Limiter]
	limit rate.Limit
	burst int
}

// newIPLimiters builds a limiter pool allowing perMinute requests per IP,
// with a burst of the same size.
func newIPLimiters(perMinute int) *ipLimiters {
	return &ipLimiters{
		cache: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterTTL),
		limit: rate.Limit(float64(perMinute) / 60.0),
		burst: perMinute,
	}
}

func (l *ipLimiters) allow(ip string) bool {
	limiter, ok := l.cache.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.cache.Add(ip, limiter)
	}
	return limiter.Allow()
}

// rateLimit rejects webhook deliveries from IPs that exceed the per-minute
// budget. Disabled when the server was built without a limiter pool.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiters != nil && !s.limiters.allow(r.RemoteAddr) {
			s.Logger.Warn("rate limit exceeded", "ip", r.RemoteAddr, "path", r.URL.Path)
			respondText(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
