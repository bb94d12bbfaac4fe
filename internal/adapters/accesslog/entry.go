// Package accesslog records one entry per served request and hands entries
// to a background sink without blocking the request path.
package accesslog

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-ID"

const redacted = "REDACTED"

// Entry is a single served request.
type Entry struct {
	Time       time.Time `json:"time"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	URI        string    `json:"uri"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Status     int       `json:"status"`
	DurationMs float64   `json:"duration_ms"`
	Client     string    `json:"client"`
}

// Sink persists batches of entries.
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
	Close() error
}

// NewRequestID returns a random request id.
func NewRequestID() string {
	return uuid.NewString()
}

// RedactURI renders u with the values of the named query parameters replaced.
func RedactURI(u *url.URL, params ...string) string {
	if u == nil {
		return ""
	}
	if u.RawQuery == "" || len(params) == 0 {
		return u.RequestURI()
	}

	q := u.Query()
	touched := false
	for _, p := range params {
		if vals, ok := q[p]; ok {
			for i := range vals {
				vals[i] = redacted
			}
			touched = true
		}
	}
	if !touched {
		return u.RequestURI()
	}

	c := *u
	c.RawQuery = q.Encode()
	return c.RequestURI()
}
