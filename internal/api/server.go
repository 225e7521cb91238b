// Package api is the HTTP surface of the sync service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/analytics"
	"github.com/patrickwarner/adsync/internal/middleware"
	"github.com/patrickwarner/adsync/internal/observability"
	"github.com/patrickwarner/adsync/internal/pipeline"
	"github.com/patrickwarner/adsync/internal/reporting"
	"github.com/patrickwarner/adsync/internal/status"
)

// SyncRunner starts syncs. *pipeline.Runner satisfies it.
type SyncRunner interface {
	SyncBusiness(ctx context.Context, businessID int64, days int) (pipeline.Summary, error)
	SyncAllActive(ctx context.Context) (pipeline.Summary, error)
	SmartSync(ctx context.Context) (pipeline.Summary, error)
}

// StatusService reads the sync status and flips auto sync.
// *status.Register satisfies it.
type StatusService interface {
	Current(ctx context.Context) (status.Status, error)
	SetAutoSync(ctx context.Context, enabled bool) error
}

// Reporter builds business reports. *reporting.Reporter satisfies it.
type Reporter interface {
	BusinessReport(ctx context.Context, businessID int64, days int) (*reporting.BusinessSummary, error)
}

// PhaseLog lists recent sync phase events. *analytics.Analytics satisfies it.
type PhaseLog interface {
	RecentPhases(ctx context.Context, businessID int64, limit int) ([]analytics.PhaseEvent, error)
}

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger      *zap.Logger
	Runner      SyncRunner
	Status      StatusService
	Reports     Reporter
	Phases      PhaseLog // nil when ClickHouse is not configured
	Metrics     observability.MetricsRegistry
	SyncTimeout time.Duration

	// AllowedOrigins enables CORS for the listed dashboard origins.
	AllowedOrigins []string
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, runner SyncRunner, st StatusService, reports Reporter, phases PhaseLog, metrics observability.MetricsRegistry, syncTimeout time.Duration) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:      logger,
		Runner:      runner,
		Status:      st,
		Reports:     reports,
		Phases:      phases,
		Metrics:     metrics,
		SyncTimeout: syncTimeout,
	}
}

// Router registers every route. The returned handler is traced with
// otelhttp and attaches trace ids to request loggers.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sync", s.SyncHandler).Methods("POST")
	api.HandleFunc("/sync/status", s.StatusHandler).Methods("GET")
	api.HandleFunc("/sync/auto", s.AutoSyncHandler).Methods("PUT")
	api.HandleFunc("/sync/events", s.PhaseEventsHandler).Methods("GET")
	api.HandleFunc("/businesses/{id}/report", s.BusinessReportHandler).Methods("GET")

	r.Use(middleware.WithTraceLogger(s.Logger))

	// CORS wraps the router so preflight requests never reach method matching.
	var h http.Handler = r
	if len(s.AllowedOrigins) > 0 {
		h = cors.Handler(cors.Options{
			AllowedOrigins: s.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		})(h)
	}
	return otelhttp.NewHandler(h, "adsync-api")
}

// observe records the outcome of one request.
func (s *Server) observe(endpoint, method string, code int, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(code))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
