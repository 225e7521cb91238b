package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/analytics"
	"github.com/patrickwarner/adsync/internal/middleware"
)

const defaultEventLimit = 100

// PhaseEventsHandler handles GET /api/sync/events?business_id=N&limit=N and
// lists the most recent sync phases of a business from the audit log.
func (s *Server) PhaseEventsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "sync_events"
	const method = "GET"

	if s.Phases == nil {
		s.observe(endpoint, method, http.StatusServiceUnavailable, start)
		http.Error(w, "analytics database unavailable", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	businessID, err := strconv.ParseInt(q.Get("business_id"), 10, 64)
	if err != nil || businessID <= 0 {
		s.observe(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}
	limit := defaultEventLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	events, err := s.Phases.RecentPhases(r.Context(), businessID, limit)
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("failed to list sync events",
			zap.Int64("business_id", businessID), zap.Error(err))
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "failed to list sync events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []analytics.PhaseEvent{}
	}
	_ = writeJSON(w, http.StatusOK, events)
	s.observe(endpoint, method, http.StatusOK, start)
}
