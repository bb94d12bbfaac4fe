package api

import (
	"net/http"
	"time"

	"github.com/okian/fighterstats/internal/domain/query"
	"github.com/okian/fighterstats/pkg/logger"
	"github.com/okian/fighterstats/pkg/metrics"
)

type strikingResponse struct {
	AverageStrikingStats map[string]query.Mean `json:"average_striking_stats"`
}

type grapplingResponse struct {
	AverageGrapplingStats map[string]query.Mean `json:"average_grappling_stats"`
}

// SummaryHandler serves aggregate statistics. Undefined means are sent as null.
type SummaryHandler struct {
	engine Engine
	logger logger.Logger
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(engine Engine, log logger.Logger) *SummaryHandler {
	return &SummaryHandler{engine: engine, logger: log}
}

// HandleStriking handles GET /summary/striking requests.
func (h *SummaryHandler) HandleStriking(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	means, err := h.engine.StrikingSummary()
	metrics.RecordQueryLatency("striking_summary", millisSince(start))

	if err != nil {
		writeQueryError(r.Context(), w, h.logger, EndpointStriking, err, "")
		return
	}
	recordMeans(means)
	writeJSON(w, http.StatusOK, strikingResponse{AverageStrikingStats: means})
}

// HandleGrappling handles GET /summary/grappling requests.
func (h *SummaryHandler) HandleGrappling(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	means, err := h.engine.GrapplingSummary()
	metrics.RecordQueryLatency("grappling_summary", millisSince(start))

	if err != nil {
		writeQueryError(r.Context(), w, h.logger, EndpointGrappling, err, "")
		return
	}
	recordMeans(means)
	writeJSON(w, http.StatusOK, grapplingResponse{AverageGrapplingStats: means})
}

// HandleStats handles GET /stats/summary requests.
func (h *SummaryHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	s := h.engine.DatasetSummary()
	metrics.RecordQueryLatency("dataset_summary", millisSince(start))

	recordMeans(map[string]query.Mean{
		"average_height": s.AverageHeight,
		"average_weight": s.AverageWeight,
		"average_reach":  s.AverageReach,
	})
	writeJSON(w, http.StatusOK, s)
}

func recordMeans(means map[string]query.Mean) {
	for column, m := range means {
		if !m.Defined {
			metrics.RecordAggregationUndefined(column)
		}
		metrics.RecordAggregationExclusions(column, m.Excluded)
	}
}
