package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/db"
	"github.com/patrickwarner/adsync/internal/pipeline"
	"github.com/patrickwarner/adsync/internal/reporting"
	"github.com/patrickwarner/adsync/internal/status"
)

// Tool request/response types
type SyncStatusInput struct{}

type SyncStatusOutput struct {
	Status status.Status `json:"status"`
}

type SyncBusinessInput struct {
	BusinessID int64 `json:"business_id"`
	Days       int   `json:"days,omitempty"` // backfill window, defaults to 30
}

type SmartSyncInput struct{}

type SyncOutput struct {
	Summary pipeline.Summary `json:"summary"`
	Error   string           `json:"error,omitempty"`
}

type BusinessReportInput struct {
	BusinessID int64 `json:"business_id"`
	Days       int   `json:"days,omitempty"`
}

type BusinessReportOutput struct {
	Report *reporting.BusinessSummary `json:"report"`
}

type syncRunner interface {
	SyncBusiness(ctx context.Context, businessID int64, days int) (pipeline.Summary, error)
	SmartSync(ctx context.Context) (pipeline.Summary, error)
}

type statusReader interface {
	Current(ctx context.Context) (status.Status, error)
}

type reporter interface {
	BusinessReport(ctx context.Context, businessID int64, days int) (*reporting.BusinessSummary, error)
}

// SyncServer exposes the sync runner as MCP tools.
type SyncServer struct {
	runner      syncRunner
	status      statusReader
	reports     reporter
	syncTimeout time.Duration
	logger      *zap.Logger
}

// GetSyncStatus implements the get_sync_status tool.
func (s *SyncServer) GetSyncStatus(ctx context.Context, req *mcp.CallToolRequest, _ SyncStatusInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	st, err := s.status.Current(ctx)
	if err != nil {
		return nil, SyncStatusOutput{}, fmt.Errorf("read sync status: %w", err)
	}
	return nil, SyncStatusOutput{Status: st}, nil
}

// SyncBusiness implements the sync_business tool. A run that started but
// failed is reported in the output rather than as a tool error, so the
// caller still sees the per-day counts.
func (s *SyncServer) SyncBusiness(ctx context.Context, req *mcp.CallToolRequest, input SyncBusinessInput) (*mcp.CallToolResult, SyncOutput, error) {
	if input.BusinessID <= 0 {
		return nil, SyncOutput{}, errors.New("business_id must be positive")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.logger.Info("mcp sync_business",
		zap.Int64("business_id", input.BusinessID),
		zap.Int("days", input.Days))

	sum, err := s.runner.SyncBusiness(ctx, input.BusinessID, input.Days)
	if errors.Is(err, db.ErrBusinessNotFound) {
		return nil, SyncOutput{}, fmt.Errorf("business %d not found", input.BusinessID)
	}
	return nil, syncOutput(sum, err), nil
}

// SmartSync implements the smart_sync tool.
func (s *SyncServer) SmartSync(ctx context.Context, req *mcp.CallToolRequest, _ SmartSyncInput) (*mcp.CallToolResult, SyncOutput, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.logger.Info("mcp smart_sync")
	sum, err := s.runner.SmartSync(ctx)
	return nil, syncOutput(sum, err), nil
}

// BusinessReport implements the business_report tool.
func (s *SyncServer) BusinessReport(ctx context.Context, req *mcp.CallToolRequest, input BusinessReportInput) (*mcp.CallToolResult, BusinessReportOutput, error) {
	if input.BusinessID <= 0 {
		return nil, BusinessReportOutput{}, errors.New("business_id must be positive")
	}
	rep, err := s.reports.BusinessReport(ctx, input.BusinessID, input.Days)
	if err != nil {
		return nil, BusinessReportOutput{}, fmt.Errorf("build report for business %d: %w", input.BusinessID, err)
	}
	return nil, BusinessReportOutput{Report: rep}, nil
}

func (s *SyncServer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.syncTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.syncTimeout)
}

func syncOutput(sum pipeline.Summary, err error) SyncOutput {
	out := SyncOutput{Summary: sum}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// register adds every tool to server.
func (s *SyncServer) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_sync_status",
		Description: "Read the current sync state, last successful sync time and auto sync flag",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, s.GetSyncStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_business",
		Description: "Backfill one business for the given number of days before today",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"business_id": map[string]interface{}{
					"type":        "integer",
					"description": "Business ID to sync",
				},
				"days": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     pipeline.MaxBackfillDays,
					"description": "Days to backfill (optional, defaults to 30)",
				},
			},
			"required": []string{"business_id"},
		},
	}, s.SyncBusiness)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "smart_sync",
		Description: "Re-sync the recent window of every active business, one day at a time",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, s.SmartSync)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "business_report",
		Description: "Summarise a business's daily performance over a trailing window",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"business_id": map[string]interface{}{
					"type":        "integer",
					"description": "Business ID to report on",
				},
				"days": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     reporting.MaxDays,
					"description": "Window size in days including today (optional, defaults to 30)",
				},
			},
			"required": []string{"business_id"},
		},
	}, s.BusinessReport)
}
