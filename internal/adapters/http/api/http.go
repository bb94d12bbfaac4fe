// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/fighterstats/internal/adapters/accesslog"
	"github.com/okian/fighterstats/internal/domain/auth"
	"github.com/okian/fighterstats/internal/domain/dataset"
	"github.com/okian/fighterstats/internal/domain/query"
	"github.com/okian/fighterstats/internal/domain/ratelimit"
	"github.com/okian/fighterstats/pkg/logger"
	"github.com/okian/fighterstats/pkg/metrics"
)

// Endpoint keys used for quotas, metrics and access log entries.
const (
	EndpointRoot      = "root"
	EndpointFighters  = "fighters"
	EndpointFighter   = "fighter"
	EndpointStriking  = "striking"
	EndpointGrappling = "grappling"
	EndpointSearch    = "search"
	EndpointStats     = "stats"
	EndpointHealth    = "healthz"

	endpointUnmatched = "unmatched"
)

// Engine answers fighter queries.
type Engine interface {
	ListAll() []dataset.Record
	FindByExactName(name string) (dataset.Record, error)
	SearchByNameSubstring(q string) ([]dataset.Record, error)
	StrikingSummary() (map[string]query.Mean, error)
	GrapplingSummary() (map[string]query.Mean, error)
	DatasetSummary() query.Summary
}

// Verifier checks a request credential.
type Verifier interface {
	Verify(credential string, present bool) error
}

// Limiter decides whether a client may call an endpoint.
type Limiter interface {
	Allow(ctx context.Context, client, endpoint string) ratelimit.Decision
}

// Recorder accepts access log entries without blocking.
type Recorder interface {
	Record(ctx context.Context, e accesslog.Entry) bool
}

// Server wires HTTP routes for the fighter API.
type Server struct {
	engine   Engine
	verifier Verifier
	limiter  Limiter
	recorder Recorder

	extractor         auth.Extractor
	rejectConflicting bool
	trustForwardedFor bool

	logger logger.Logger

	healthHandler   *HealthHandler
	fightersHandler *FightersHandler
	summaryHandler  *SummaryHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(engine Engine, verifier Verifier, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		verifier:  verifier,
		extractor: auth.NewExtractor("", ""),
		logger:    logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler()
	s.fightersHandler = NewFightersHandler(engine, s.logger)
	s.summaryHandler = NewSummaryHandler(engine, s.logger)
	return s
}

// Register attaches all HTTP routes to mux. Serve mux through Handler so that
// every request reaches the access log.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", Chain(s.healthHandler.HandleHealth, Endpoint(EndpointHealth), Metrics(EndpointHealth)))

	mux.HandleFunc("GET /{$}", s.public(EndpointRoot, HandleRoot))
	mux.HandleFunc("GET /fighters", s.protected(EndpointFighters, s.fightersHandler.HandleList))
	mux.HandleFunc("GET /fighters/{name}", s.protected(EndpointFighter, s.fightersHandler.HandleGet))
	mux.HandleFunc("GET /search", s.protected(EndpointSearch, s.fightersHandler.HandleSearch))
	mux.HandleFunc("GET /summary/striking", s.protected(EndpointStriking, s.summaryHandler.HandleStriking))
	mux.HandleFunc("GET /summary/grappling", s.protected(EndpointGrappling, s.summaryHandler.HandleGrappling))
	mux.HandleFunc("GET /stats/summary", s.protected(EndpointStats, s.summaryHandler.HandleStats))

	mux.HandleFunc("GET /", s.public(endpointUnmatched, handleUnmatched))
}

// public routes are rate limited but carry no credential check.
func (s *Server) public(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return Chain(h,
		Endpoint(endpoint),
		Metrics(endpoint),
		s.RateLimitMiddleware(endpoint),
	)
}

// protected routes additionally require a valid credential.
func (s *Server) protected(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return Chain(h,
		Endpoint(endpoint),
		Metrics(endpoint),
		s.RateLimitMiddleware(endpoint),
		s.AuthMiddleware(),
	)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON encodes v before writing the header so that an encoding failure
// is answered with a 500 instead of a truncated success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		metrics.RecordErrorByComponent("api", "encode")
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Code: codeInternal, Message: msgInternal})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// RootMessage greets callers of GET /.
const RootMessage = "Welcome to the UFC Fighter Stats API 💪"

// HandleRoot handles GET / requests.
func HandleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: RootMessage})
}

func handleUnmatched(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, codeNotFound, "Not found")
}
