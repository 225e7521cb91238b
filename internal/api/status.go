package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/middleware"
)

// StatusHandler handles GET /api/sync/status.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "sync_status"
	const method = "GET"

	st, err := s.Status.Current(r.Context())
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("failed to read sync status", zap.Error(err))
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "failed to read sync status", http.StatusInternalServerError)
		return
	}
	_ = writeJSON(w, http.StatusOK, st)
	s.observe(endpoint, method, http.StatusOK, start)
}

// AutoSyncRequest is the body of PUT /api/sync/auto.
type AutoSyncRequest struct {
	Enabled *bool `json:"enabled"`
}

// AutoSyncHandler handles PUT /api/sync/auto and answers with the updated status.
func (s *Server) AutoSyncHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "sync_auto"
	const method = "PUT"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	var req AutoSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		s.observe(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, `body must be {"enabled": true|false}`, http.StatusBadRequest)
		return
	}

	if err := s.Status.SetAutoSync(r.Context(), *req.Enabled); err != nil {
		logger.Error("failed to update auto sync", zap.Error(err))
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "failed to update auto sync", http.StatusInternalServerError)
		return
	}
	logger.Info("auto sync updated", zap.Bool("enabled", *req.Enabled))

	st, err := s.Status.Current(r.Context())
	if err != nil {
		logger.Error("failed to read sync status", zap.Error(err))
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "failed to read sync status", http.StatusInternalServerError)
		return
	}
	_ = writeJSON(w, http.StatusOK, st)
	s.observe(endpoint, method, http.StatusOK, start)
}
