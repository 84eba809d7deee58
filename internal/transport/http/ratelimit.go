package http

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit applies a per-client token bucket keyed by remote IP.
func RateLimit(rps float64, burst int, next http.Handler) http.Handler {
	if burst <= 0 {
		burst = 5
	}
	limiter := &clientLimiter{rps: rate.Limit(rps), burst: burst}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.get(clientIP(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type clientLimiter struct {
	limiters sync.Map
	rps      rate.Limit
	burst    int
}

func (l *clientLimiter) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	lim := rate.NewLimiter(l.rps, l.burst)
	if actual, loaded := l.limiters.LoadOrStore(key, lim); loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
