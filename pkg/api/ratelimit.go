package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// uploadLimiter throttles uploads per client address with a token bucket per
// client. Entries are never evicted; the admin API has a small, stable set of
// callers.
type uploadLimiter struct {
	perMinute int

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

func newUploadLimiter(perMinute int) *uploadLimiter {
	return &uploadLimiter{
		perMinute: perMinute,
		clients:   make(map[string]*rate.Limiter),
	}
}

func (l *uploadLimiter) limiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.clients[client]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute)
		l.clients[client] = lim
	}
	return lim
}

func (l *uploadLimiter) allow(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return l.limiter(host).Allow()
}

// RateLimitMiddleware enforces a per-client upload rate on mutating requests.
// perMinute <= 0 disables limiting. Reads are never limited.
func RateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	var limiter *uploadLimiter
	if perMinute > 0 {
		limiter = newUploadLimiter(perMinute)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.allow(r) {
				retryAfter := 60 / limiter.perMinute
				if retryAfter < 1 {
					retryAfter = 1
				}
				WriteTooManyRequests(w, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
