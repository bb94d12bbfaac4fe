package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/fighterstats/internal/domain/query"
	"github.com/okian/fighterstats/pkg/logger"
	"github.com/okian/fighterstats/pkg/metrics"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// Error codes carried in errorResponse.Code.
const (
	codeUnauthorized = "unauthorized"
	codeRateLimited  = "rate_limited"
	codeNotFound     = "not_found"
	codeBadRequest   = "bad_request"
	codeInternal     = "internal_error"
)

const (
	msgUnauthorized   = "Invalid API Key"
	msgFighterMissing = "Fighter not found"
	msgSearchMissing  = "No fighters matched your search"
	msgInternal       = "Internal server error"
)

// writeQueryError maps engine errors to responses. notFound is the message
// used for query.ErrNotFound; anything unrecognised is a 500 whose detail is
// only logged.
func writeQueryError(ctx context.Context, w http.ResponseWriter, log logger.Logger, endpoint string, err error, notFound string) {
	switch {
	case errors.Is(err, query.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, notFound)
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
	default:
		metrics.RecordErrorByComponent("api", endpoint)
		log.Error(ctx, "query failed",
			logger.String("endpoint", endpoint),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, codeInternal, msgInternal)
	}
}
