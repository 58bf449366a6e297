package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/aggregator"
)

// defaultRunsLimit caps GET /runs when no limit is given.
const defaultRunsLimit = 20

// ErrNoAggregator is returned by Aggregate when the server has no aggregator.
var ErrNoAggregator = errors.New("api: no aggregator configured")

// Aggregate runs one aggregation and pushes the summary to dashboards
// listening on store.updated. It serves POST /aggregate and bus commands alike.
func (s *Server) Aggregate(ctx context.Context) (*aggregator.Summary, error) {
	if s.aggregator == nil {
		return nil, ErrNoAggregator
	}
	sum, err := s.aggregator.Run(ctx)
	if err != nil {
		return sum, err
	}
	s.broadcast(ChannelStoreUpdated, sum)
	return sum, nil
}

// handleAggregate triggers a run and returns its summary.
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Aggregate(r.Context())
	switch {
	case errors.Is(err, ErrNoAggregator):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "aggregation is not available on this server")
	case errors.Is(err, aggregator.ErrNothingToAggregate):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status":  http.StatusUnprocessableEntity,
			"code":    ErrCodeNoRecords,
			"message": err.Error(),
			"summary": sum,
		})
	case err != nil:
		s.logger.Error("aggregation via API failed", "error", err)
		writeInternalError(w, "aggregation failed")
	default:
		writeJSON(w, http.StatusOK, sum)
	}
}

// handleListRuns returns the most recent aggregation runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.store.Runs(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs failed", "error", err)
		writeInternalError(w, "failed to read run history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}
