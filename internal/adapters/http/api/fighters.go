package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/okian/fighterstats/internal/domain/dataset"
	"github.com/okian/fighterstats/pkg/logger"
	"github.com/okian/fighterstats/pkg/metrics"
)

// queryParam is the search term parameter of GET /search.
const queryParam = "query"

// FightersHandler serves record lookups.
type FightersHandler struct {
	engine Engine
	logger logger.Logger
}

// NewFightersHandler creates a new fighters handler.
func NewFightersHandler(engine Engine, log logger.Logger) *FightersHandler {
	return &FightersHandler{engine: engine, logger: log}
}

// HandleList handles GET /fighters requests.
func (h *FightersHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	records := h.engine.ListAll()
	metrics.RecordQueryLatency("list_all", millisSince(start))

	writeJSON(w, http.StatusOK, nonNil(records))
}

// HandleGet handles GET /fighters/{name} requests.
func (h *FightersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec, err := h.engine.FindByExactName(r.PathValue("name"))
	metrics.RecordQueryLatency("find_by_name", millisSince(start))

	if err != nil {
		writeQueryError(r.Context(), w, h.logger, EndpointFighter, err, msgFighterMissing)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleSearch handles GET /search?query= requests.
func (h *FightersHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	values, ok := r.URL.Query()[queryParam]
	if !ok || len(values) == 0 {
		writeQueryError(r.Context(), w, h.logger, EndpointSearch,
			fmt.Errorf("%w: missing %q parameter", ErrBadRequest, queryParam), "")
		return
	}

	start := time.Now()
	records, err := h.engine.SearchByNameSubstring(values[0])
	metrics.RecordQueryLatency("search", millisSince(start))

	if err != nil {
		writeQueryError(r.Context(), w, h.logger, EndpointSearch, err, msgSearchMissing)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func nonNil(records []dataset.Record) []dataset.Record {
	if records == nil {
		return []dataset.Record{}
	}
	return records
}
