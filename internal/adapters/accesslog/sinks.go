package accesslog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/okian/fighterstats/pkg/logger"
)

// Sink kinds accepted by Open.
const (
	SinkStdout = "stdout"
	SinkFile   = "file"
	SinkSQLite = "sqlite"
)

const filePerm = 0o644

// Open builds the sink named by kind. path is ignored for stdout.
func Open(ctx context.Context, kind, path string) (Sink, error) {
	switch kind {
	case "", SinkStdout:
		return NewLogSink(logger.Named("access")), nil
	case SinkFile:
		return NewFileSink(path)
	case SinkSQLite:
		return NewSQLiteSink(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, kind)
	}
}

// LogSink writes entries through the structured logger.
type LogSink struct {
	log logger.Logger
}

// NewLogSink returns a sink that logs every entry at info level.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Nop()
	}
	return &LogSink{log: l}
}

func (s *LogSink) Write(ctx context.Context, entries []Entry) error {
	for i := range entries {
		e := &entries[i]
		s.log.Info(ctx, "request",
			logger.String("request_id", e.RequestID),
			logger.String("method", e.Method),
			logger.String("uri", e.URI),
			logger.Int("status", e.Status),
			logger.Float64("duration_ms", e.DurationMs),
			logger.String("client", e.Client),
		)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }

// FileSink appends entries as JSON lines.
type FileSink struct {
	mu  sync.Mutex
	w   io.WriteCloser
	enc *json.Encoder
}

// NewFileSink opens path for appending, creating parent directories.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file sink needs a path", ErrSinkConfig)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create access log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("open access log: %w", err)
	}
	return &FileSink{w: f, enc: json.NewEncoder(f)}, nil
}

func (s *FileSink) Write(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return ErrSinkClosed
	}
	for i := range entries {
		if err := s.enc.Encode(&entries[i]); err != nil {
			return fmt.Errorf("write access log: %w", err)
		}
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return nil
	}
	s.enc = nil
	return s.w.Close()
}
