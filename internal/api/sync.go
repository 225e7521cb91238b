package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/db"
	"github.com/patrickwarner/adsync/internal/middleware"
	"github.com/patrickwarner/adsync/internal/pipeline"
)

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	Mode       string `json:"mode"`
	BusinessID int64  `json:"business_id"`
	Days       int    `json:"days"`
}

const maxSyncBody = 1 << 16

// SyncHandler handles POST /api/sync. It runs the requested sync within
// SyncTimeout and answers with the run Summary. Only a run that could not
// start answers 500; failed units are reported in the Summary.
func (s *Server) SyncHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "sync"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	var req SyncRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSyncBody))
	if err == nil && len(body) > 0 {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		s.observe(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		req.Mode = pipeline.ModeAll
	}

	switch req.Mode {
	case pipeline.ModeBusiness:
		if req.BusinessID <= 0 {
			s.observe(endpoint, method, http.StatusBadRequest, start)
			http.Error(w, "business_id is required", http.StatusBadRequest)
			return
		}
		if req.Days < 0 || req.Days > pipeline.MaxBackfillDays {
			s.observe(endpoint, method, http.StatusBadRequest, start)
			http.Error(w, "days must be between 1 and 365", http.StatusBadRequest)
			return
		}
	case pipeline.ModeAll, pipeline.ModeSmart:
	default:
		s.observe(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "mode must be business, all or smart", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.SyncTimeout)
		defer cancel()
	}

	var sum pipeline.Summary
	switch req.Mode {
	case pipeline.ModeBusiness:
		sum, err = s.Runner.SyncBusiness(ctx, req.BusinessID, req.Days)
	case pipeline.ModeSmart:
		sum, err = s.Runner.SmartSync(ctx)
	default:
		sum, err = s.Runner.SyncAllActive(ctx)
	}
	if errors.Is(err, db.ErrBusinessNotFound) {
		s.observe(endpoint, method, http.StatusNotFound, start)
		http.Error(w, "business not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("sync failed to start", zap.String("mode", req.Mode), zap.Int64("business_id", req.BusinessID), zap.Error(err))
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		_ = writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "summary": sum})
		return
	}

	if err := writeJSON(w, http.StatusOK, sum); err != nil {
		logger.Warn("failed to encode sync summary", zap.Error(err))
	}
	s.observe(endpoint, method, http.StatusOK, start)
}
