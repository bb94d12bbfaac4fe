// Package auth checks caller credentials against the configured API key.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

// Default credential locations.
const (
	DefaultHeader     = "X-API-Key"
	DefaultQueryParam = "api_key"
)

// Gate verifies an API key. It holds no per-request state.
type Gate struct {
	secret []byte
}

// NewGate returns a Gate for secret. An empty secret is rejected so that an
// absent credential can never match it.
func NewGate(secret string) (*Gate, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Gate{secret: []byte(secret)}, nil
}

// Verify returns nil when credential is present and equals the secret.
func (g *Gate) Verify(credential string, present bool) error {
	if !present || credential == "" {
		return ErrMissingCredential
	}
	if subtle.ConstantTimeCompare([]byte(credential), g.secret) != 1 {
		return ErrInvalidCredential
	}
	return nil
}

// Credential is the key a request carried and where it came from.
type Credential struct {
	Value    string
	Present  bool
	Source   string // "header", "query" or ""
	Conflict bool   // header and query parameter both present and different
}

// Extractor reads credentials from requests.
type Extractor struct {
	Header     string
	QueryParam string
}

// NewExtractor returns an Extractor, falling back to the default locations
// for empty names.
func NewExtractor(header, queryParam string) Extractor {
	if header == "" {
		header = DefaultHeader
	}
	if queryParam == "" {
		queryParam = DefaultQueryParam
	}
	return Extractor{Header: header, QueryParam: queryParam}
}

// Extract returns the request credential. The header wins over the query
// parameter; a disagreement between the two is flagged in Conflict.
func (x Extractor) Extract(r *http.Request) Credential {
	headerVals, inHeader := r.Header[http.CanonicalHeaderKey(x.Header)]
	queryVals, inQuery := r.URL.Query()[x.QueryParam]

	var hv, qv string
	if inHeader && len(headerVals) > 0 {
		hv = headerVals[0]
	}
	if inQuery && len(queryVals) > 0 {
		qv = queryVals[0]
	}
	inHeader = inHeader && hv != ""
	inQuery = inQuery && qv != ""

	switch {
	case inHeader:
		return Credential{Value: hv, Present: true, Source: "header", Conflict: inQuery && qv != hv}
	case inQuery:
		return Credential{Value: qv, Present: true, Source: "query"}
	default:
		return Credential{}
	}
}

// Reason maps a Verify error to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing"
	case errors.Is(err, ErrInvalidCredential):
		return "invalid"
	case errors.Is(err, ErrCredentialConflict):
		return "conflict"
	default:
		return "unknown"
	}
}
