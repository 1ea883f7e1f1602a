package api

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/prodbymtr/storefront/auth"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Admin == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "admin disabled", Message: "ADMIN_JWT_SECRET is not configured"})
			return
		}
		if err := s.deps.Admin.Authorize(r); err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrForbidden) {
				status = http.StatusForbidden
			}
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Admin request rejected")
			writeJSON(w, status, errorBody{Error: http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(remoteIP(r), s.now()) {
			writeJSON(w, http.StatusTooManyRequests, checkoutError{
				Error:   "rate limit exceeded",
				Message: "Demasiados intentos. Esperá unos segundos.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ipLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

const maxTrackedIPs = 10000

// ipRateLimiter keeps one token bucket per client IP. Idle buckets are swept
// lazily. Once maxIPs addresses are tracked, new ones share a single
// overflow bucket.
type ipRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	overflow  *rate.Limiter
	rps       rate.Limit
	burst     int
	maxIPs    int
	lastSweep time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipRateLimiter{
		limiters: make(map[string]*ipLimiter),
		overflow: rate.NewLimiter(limit, burst),
		rps:      limit,
		burst:    burst,
		maxIPs:   maxTrackedIPs,
	}
}

func (l *ipRateLimiter) Allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > 5*time.Minute {
		l.sweep(now, 30*time.Minute)
	}

	il, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= l.maxIPs {
			l.sweep(now, time.Minute)
		}
		if len(l.limiters) >= l.maxIPs {
			return l.overflow.AllowN(now, 1)
		}
		il = &ipLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = il
	}
	il.last = now
	return il.limiter.AllowN(now, 1)
}

func (l *ipRateLimiter) sweep(now time.Time, idle time.Duration) {
	for key, il := range l.limiters {
		if now.Sub(il.last) > idle {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
