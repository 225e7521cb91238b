package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/middleware"
	"github.com/patrickwarner/adsync/internal/reporting"
)

// BusinessReportHandler handles GET /api/businesses/{id}/report.
//
// Query Parameters:
//   - days: Number of days to include, today included (default: 30, max: 365)
func (s *Server) BusinessReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "/api/businesses/{id}/report"
	method := r.Method
	logger := middleware.LoggerFromRequest(r, s.Logger)

	businessID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || businessID <= 0 {
		s.observe(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid business id", http.StatusBadRequest)
		return
	}

	days := reporting.DefaultDays
	if daysParam := r.URL.Query().Get("days"); daysParam != "" {
		parsed, err := strconv.Atoi(daysParam)
		if err != nil || parsed <= 0 {
			s.observe(endpoint, method, http.StatusBadRequest, start)
			http.Error(w, "invalid days parameter", http.StatusBadRequest)
			return
		}
		days = min(parsed, reporting.MaxDays)
	}

	summary, err := s.Reports.BusinessReport(r.Context(), businessID, days)
	if err != nil {
		logger.Error("failed to generate business report",
			zap.Int64("business_id", businessID),
			zap.Int("days", days),
			zap.Error(err))
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "failed to generate report", http.StatusInternalServerError)
		return
	}

	if err := writeJSON(w, http.StatusOK, summary); err != nil {
		logger.Error("failed to encode business report response",
			zap.Int64("business_id", businessID),
			zap.Error(err))
	}
	logger.Info("business report generated",
		zap.Int64("business_id", businessID),
		zap.Int("days", days),
		zap.Int64("impressions", summary.Totals.Impressions),
		zap.Float64("spend", summary.Totals.Spend))
	s.observe(endpoint, method, http.StatusOK, start)
}
