package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harun/recondora/internal/observability"
	"github.com/harun/recondora/internal/tracing"
)

// requestContext tags the request context with the chi request id.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = tracing.WithRequestID(ctx, id)
		}
		ctx = tracing.NewRequestContext(ctx, sourceHTTP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.metrics.RecordHTTPRequest(route, status)
		log := tracing.LoggerFromContext(r.Context(), s.logger)
		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// sharedSecret requires secret in the X-Recondora-Secret header or as a
// bearer token. An empty secret disables the check.
func sharedSecret(secret string) func(http.Handler) http.Handler {
	required := strings.TrimSpace(secret)
	if required == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			candidate := strings.TrimSpace(r.Header.Get(SecretHeader))
			if candidate == "" {
				auth := strings.TrimSpace(r.Header.Get("Authorization"))
				if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
					candidate = strings.TrimSpace(auth[7:])
				}
			}
			if subtle.ConstantTimeCompare([]byte(candidate), []byte(required)) != 1 {
				observability.RecordSecurityAudit(r.Context(), "denied:secret", r.RemoteAddr, "rejected",
					map[string]interface{}{"path": r.URL.Path})
				writeErr(w, http.StatusUnauthorized, "unauthorized", "missing or invalid shared secret", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit applies the recon limits per client address. RealIP runs first,
// so behind a proxy the address is the forwarded client.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if ok, reason := s.limiter.Acquire(client); !ok {
			s.metrics.RecordRateLimited()
			log := tracing.LoggerFromContext(r.Context(), s.logger)
			log.Warn().
				Str("client", client).
				Str("reason", reason).
				Msg("Recon request rejected")
			observability.RecordReconAudit(r.Context(), client, r.URL.Query().Get("target"), "rejected", nil,
				map[string]interface{}{"reason": reason})
			w.Header().Set("Retry-After", "60")
			writeErr(w, http.StatusTooManyRequests, "rate_limited", reason, nil)
			return
		}
		defer s.limiter.Release(client)
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of the remote address.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
