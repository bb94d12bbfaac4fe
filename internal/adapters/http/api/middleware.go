// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/fighterstats/internal/adapters/accesslog"
	"github.com/okian/fighterstats/internal/domain/auth"
	"github.com/okian/fighterstats/internal/domain/ratelimit"
	"github.com/okian/fighterstats/pkg/logger"
	"github.com/okian/fighterstats/pkg/metrics"
)

// HTTP status code constants.
const (
	statusBadRequest      = 400
	statusNotFound        = 404
	statusTooManyRequests = 429
	statusInternalError   = 500
)

// Rate limit response headers.
const (
	headerRetryAfter         = "Retry-After"
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerForwardedFor       = "X-Forwarded-For"
)

// Middleware intercepts a request and either calls next or answers itself.
type Middleware func(next http.HandlerFunc) http.HandlerFunc

// Chain wraps h so that mws run in the order given, the first outermost.
func Chain(h http.HandlerFunc, mws ...Middleware) http.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Metrics adapts MetricsMiddleware to a Middleware.
func Metrics(endpoint string) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return MetricsMiddleware(next, endpoint)
	}
}

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		durationMs := millisSince(start)
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= statusBadRequest {
			errorType := getErrorType(wrapped.statusCode)
			severity := getErrorSeverity(wrapped.statusCode)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByType(errorType, severity)
			metrics.RecordErrorLatency("http", errorType, durationMs)
		}
	}
}

// routeKey carries the *route filled in by Endpoint.
type routeKey struct{}

type route struct {
	endpoint string
}

// Endpoint tags the request with the endpoint key used by the access log.
func Endpoint(endpoint string) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if rt, ok := r.Context().Value(routeKey{}).(*route); ok {
				rt.endpoint = endpoint
			}
			next.ServeHTTP(w, r)
		}
	}
}

// Handler wraps next, normally the whole mux, so that every inbound request
// gets a request id and one access log entry. This includes requests the mux
// answers itself, such as 405s, and requests refused by inner interceptors.
func (s *Server) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := accesslog.NewRequestID()
		w.Header().Set(accesslog.RequestIDHeader, id)

		rt := &route{}
		r = r.WithContext(context.WithValue(r.Context(), routeKey{}, rt))

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		if s.recorder == nil {
			return
		}
		endpoint := rt.endpoint
		if endpoint == "" {
			endpoint = r.Pattern
		}
		s.recorder.Record(r.Context(), accesslog.Entry{
			Time:       start.UTC(),
			RequestID:  id,
			Method:     r.Method,
			URI:        accesslog.RedactURI(r.URL, s.extractor.QueryParam),
			Endpoint:   endpoint,
			Status:     wrapped.statusCode,
			DurationMs: millisSince(start),
			Client:     ClientIdentity(r, s.trustForwardedFor),
		})
	})
}

// RateLimitMiddleware rejects requests over the endpoint quota with 429.
func (s *Server) RateLimitMiddleware(endpoint string) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			d := s.limiter.Allow(r.Context(), ClientIdentity(r, s.trustForwardedFor), endpoint)
			if d.Limited() {
				setRateLimitHeaders(w, d)
			}
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := retryAfterSeconds(d.RetryAfter)
			w.Header().Set(headerRetryAfter, strconv.Itoa(retry))
			metrics.RecordRateLimitRejection(endpoint)
			writeError(w, http.StatusTooManyRequests, codeRateLimited,
				fmt.Sprintf("Rate limit exceeded: %d requests allowed, retry in %d seconds", d.Limit, retry))
		}
	}
}

// AuthMiddleware rejects requests without the configured credential with 401.
func (s *Server) AuthMiddleware() Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cred := s.extractor.Extract(r)

			if cred.Conflict {
				metrics.RecordCredentialConflict()
				s.logger.Warn(r.Context(), "header and query credentials differ",
					logger.String("path", r.URL.Path),
					logger.Bool("rejected", s.rejectConflicting),
				)
				if s.rejectConflicting {
					s.unauthorized(w, auth.ErrCredentialConflict)
					return
				}
			}

			if err := s.verifier.Verify(cred.Value, cred.Present); err != nil {
				s.unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

func (s *Server) unauthorized(w http.ResponseWriter, err error) {
	metrics.RecordAuthFailure(auth.Reason(err))
	writeError(w, http.StatusUnauthorized, codeUnauthorized, msgUnauthorized)
}

// ClientIdentity returns the address quotas are counted against.
func ClientIdentity(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.Header.Get(headerForwardedFor); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	h := w.Header()
	h.Set(headerRateLimitLimit, strconv.Itoa(d.Limit))
	h.Set(headerRateLimitRemaining, strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		h.Set(headerRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func millisSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "server_error"
	case statusCode == statusTooManyRequests:
		return "rate_limit"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode == http.StatusUnauthorized:
		return "unauthorized"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// getErrorSeverity returns error severity based on HTTP status code.
func getErrorSeverity(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "high"
	case statusCode >= statusBadRequest:
		return "medium"
	default:
		return "low"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func wrap(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
