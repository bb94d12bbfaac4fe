// Package service assembles the fighter stats API from configuration and
// owns the lifecycle of its background components.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/okian/fighterstats/internal/adapters/accesslog"
	"github.com/okian/fighterstats/internal/adapters/http/api"
	"github.com/okian/fighterstats/internal/adapters/http/swagger"
	"github.com/okian/fighterstats/internal/adapters/mq/queue"
	"github.com/okian/fighterstats/internal/adapters/mq/worker"
	"github.com/okian/fighterstats/internal/config"
	"github.com/okian/fighterstats/internal/domain/auth"
	"github.com/okian/fighterstats/internal/domain/dataset"
	"github.com/okian/fighterstats/internal/domain/query"
	"github.com/okian/fighterstats/internal/domain/ratelimit"
	"github.com/okian/fighterstats/pkg/logger"
	"github.com/okian/fighterstats/pkg/metrics"
)

const readHeaderTimeout = 5 * time.Second

// Service wires the dataset, request policies, access log pipeline and HTTP
// routes together.
type Service struct {
	mu sync.Mutex

	cfg    *config.Config
	logger logger.Logger

	// Optional overrides.
	table *dataset.Table
	sink  accesslog.Sink

	// ownSink is set while sink was opened by Start from configuration.
	ownSink bool

	// Components built by Start.
	engine  *query.Engine
	limiter ratelimit.Limiter
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	handler http.Handler

	started       bool
	stopJanitor   context.CancelFunc
	janitorDone   chan struct{}
	datasetLoadMs float64
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTable serves t instead of loading cfg.DatasetPath.
func WithTable(t *dataset.Table) Option {
	return func(s *Service) {
		s.table = t
	}
}

// WithSink writes access log entries to sink instead of the configured one.
// The caller keeps ownership and closes it after Stop.
func WithSink(sink accesslog.Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// New constructs a Service. Nothing is loaded until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the dataset and starts the access log workers and the rate
// limit janitor. A dataset that cannot be loaded is returned as an error and
// nothing is started.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting fighter stats service...")

	table, err := s.loadTable(ctx)
	if err != nil {
		return err
	}
	s.engine = query.NewEngine(table)

	gate, err := auth.NewGate(s.cfg.APIKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	quotas, err := s.cfg.Quotas()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	s.limiter, err = ratelimit.New(ratelimit.Strategy(s.cfg.RateLimit.Strategy), quotas)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	if s.sink == nil {
		s.sink, err = accesslog.Open(ctx, s.cfg.AccessLog.Sink, s.cfg.AccessLog.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStart, err)
		}
		s.ownSink = true
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.AccessLog.QueueSize))
	s.pool = worker.NewPool(s.cfg.AccessLog.Workers, s.queue, s.sink,
		worker.WithBatchSize(s.cfg.AccessLog.BatchSize),
		worker.WithFlushInterval(s.cfg.AccessLog.FlushInterval),
	)
	// Workers run until Stop closes the queue, not until ctx ends, so that
	// entries recorded during shutdown are still written.
	s.pool.Start(context.WithoutCancel(ctx))

	janitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopJanitor = cancel
	s.janitorDone = make(chan struct{})
	go func() {
		defer close(s.janitorDone)
		ratelimit.Run(janitorCtx, s.limiter, s.cfg.RateLimit.SweepInterval)
	}()

	server := api.NewServer(s.engine, gate,
		api.WithLimiter(s.limiter),
		api.WithRecorder(accesslog.NewRecorder(s.queue)),
		api.WithCredentialLocations(s.cfg.Auth.Header, s.cfg.Auth.QueryParam),
		api.WithRejectConflictingCredentials(s.cfg.Auth.RejectConflicting),
		api.WithTrustForwardedFor(s.cfg.RateLimit.TrustForwardedFor),
		api.WithLogger(s.logger.Named("api")),
	)
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	server.Register(ctx, mux)
	s.handler = server.Handler(mux)

	s.started = true
	s.logger.Info(ctx, "fighter stats service started",
		logger.Int("records", table.Len()),
		logger.Int("columns", len(table.Columns())),
		logger.String("rate_limit_strategy", s.cfg.RateLimit.Strategy),
		logger.String("access_log_sink", s.cfg.AccessLog.Sink),
		logger.Int("access_log_workers", s.pool.Size()),
	)
	return nil
}

func (s *Service) loadTable(ctx context.Context) (*dataset.Table, error) {
	start := time.Now()
	table := s.table
	if table == nil {
		var err error
		table, err = dataset.LoadFile(ctx, s.cfg.DatasetPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrDataset, s.cfg.DatasetPath, err)
		}
	}
	elapsed := time.Since(start)
	s.datasetLoadMs = float64(elapsed.Microseconds()) / 1000
	metrics.UpdateDataset(table.Len(), len(table.Columns()), s.datasetLoadMs)
	s.logger.Debug(ctx, "dataset loaded",
		logger.String("path", s.cfg.DatasetPath),
		logger.Int64("load_us", elapsed.Microseconds()),
	)
	return table, nil
}

// Handler returns the HTTP handler serving every route. It is nil before Start.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// Engine returns the query engine. It is nil before Start.
func (s *Service) Engine() *query.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// ListenAndServe serves Handler on cfg.Addr until ctx is cancelled, then
// shuts the listener down within the configured timeout.
func (s *Service) ListenAndServe(ctx context.Context) error {
	h := s.Handler()
	if h == nil {
		return ErrNotStarted
	}

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           h,
		ReadTimeout:       s.cfg.HTTP.ReadTimeout,
		WriteTimeout:      s.cfg.HTTP.WriteTimeout,
		IdleTimeout:       s.cfg.HTTP.IdleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "starting HTTP server", logger.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Stop drains the access log queue, stops the janitor and closes a sink
// opened from configuration. A stopped service may be started again.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping fighter stats service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	s.stopJanitor()
	<-s.janitorDone

	// A configured sink is reopened by the next Start.
	if s.ownSink {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close access log sink: %w", err))
		}
		s.sink = nil
		s.ownSink = false
	}

	s.started = false
	s.logger.Info(ctx, "fighter stats service stopped")
	return errors.Join(errs...)
}

// Stats is a point-in-time view of the running service.
type Stats struct {
	Started          bool
	Records          int
	QueueLength      int
	QueueCapacity    int
	RateLimitBuckets int
	Workers          int
}

// GetStats returns service statistics and refreshes the matching gauges.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Started: s.started}
	if !s.started {
		return st
	}

	st.Records = s.engine.Table().Len()
	st.QueueLength = s.queue.Len(ctx)
	st.QueueCapacity = s.queue.Capacity()
	st.RateLimitBuckets = s.limiter.Len()
	st.Workers = s.pool.Size()

	metrics.UpdateAccessLogQueue(st.QueueLength, st.QueueCapacity)
	metrics.UpdateRateLimitBuckets(st.RateLimitBuckets)
	return st
}
