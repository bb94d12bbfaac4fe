package api

import (
	"github.com/okian/fighterstats/internal/domain/auth"
	"github.com/okian/fighterstats/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithLimiter enables per-client quotas.
func WithLimiter(l Limiter) Option {
	return func(s *Server) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithRecorder enables the access log.
func WithRecorder(r Recorder) Option {
	return func(s *Server) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithCredentialLocations sets the header and query parameter credentials are read from.
func WithCredentialLocations(header, queryParam string) Option {
	return func(s *Server) {
		s.extractor = auth.NewExtractor(header, queryParam)
	}
}

// WithRejectConflictingCredentials turns a header/query credential mismatch into a 401.
func WithRejectConflictingCredentials(reject bool) Option {
	return func(s *Server) {
		s.rejectConflicting = reject
	}
}

// WithTrustForwardedFor identifies clients by the first X-Forwarded-For hop.
func WithTrustForwardedFor(trust bool) Option {
	return func(s *Server) {
		s.trustForwardedFor = trust
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
