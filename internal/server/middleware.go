package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/reliefmesh/reliefmesh-go/internal/api"
	"github.com/reliefmesh/reliefmesh-go/internal/cache"
	"github.com/reliefmesh/reliefmesh-go/internal/httpapi/auth"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
)

// loggingMiddleware emits one structured access log line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware resolves the session token into an identity and stores it
// on the request context. Paths listed as public pass through untouched.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAuthRequired(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := auth.ExtractToken(r)
		if token == "" {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
			return
		}

		session, err := s.deps.Sessions.Get(r.Context(), token)
		if err != nil {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "invalid session")
			return
		}
		if session.IsExpired() {
			api.WriteUnauthorized(w, api.ReasonSessionExpired, "session expired")
			return
		}

		user, err := s.deps.Backend.GetUser(r.Context(), session.UserID)
		if err != nil {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "unknown session user")
			return
		}

		ctx := identity.WithIdentity(r.Context(), identity.FromUser(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ratePolicy is a fixed-window limit for one path.
type ratePolicy struct {
	limit  int64
	window time.Duration
}

// ratedPaths lists unauthenticated endpoints that need abuse protection.
var ratedPaths = map[string]ratePolicy{
	"/api/auth/login":    {limit: 5, window: cache.TTLRateLimit},
	"/api/auth/register": {limit: 10, window: cache.TTLRateLimit},
	"/api/site/feedback": {limit: 10, window: cache.TTLRateLimit},
}

// rateLimitMiddleware counts requests per client IP per path in the shared
// counter. With no limiter configured it is a passthrough.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.deps.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy, ok := ratedPaths[r.URL.Path]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", r.URL.Path, clientIP(r))
		count, resetAt, err := s.deps.Limiter.Increment(r.Context(), key, 1, policy.window)
		if err != nil {
			// The limiter is advisory. Losing it must not take the API down.
			s.log.Warn("rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if count > policy.limit {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(resetAt).Seconds())+1))
			api.WriteTooManyRequests(w, "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP trusts middleware.RealIP to have rewritten RemoteAddr already.
func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
