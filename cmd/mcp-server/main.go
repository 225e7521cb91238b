package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/app"
	"github.com/patrickwarner/adsync/internal/config"
	"github.com/patrickwarner/adsync/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol; the production logger writes to stderr.
	logger, err := observability.InitLoggerWithService(cfg.ServiceName + "-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, cfg); err != nil {
		logger.Error("mcp server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, observability.NewNoOpRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	syncServer := &SyncServer{
		runner:      a.Runner,
		status:      a.Register,
		reports:     a.Reports,
		syncTimeout: cfg.SyncTimeout,
		logger:      logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "adsync",
		Version: "1.0.0",
	}, nil)
	syncServer.register(server)

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")
	if err := server.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve: %w (mcp log: %s)", err, logBuffer.String())
	}
	return nil
}
