// Diagnostics server - runs hardware self-tests and streams button and
// microphone events over HTTP, WebSocket and gRPC
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/config"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/diagnostics"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/hardware"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/rpc"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/server"
)

func main() {
	cfg := config.Load()

	// Setup structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	hw, err := hardware.New(cfg)
	if err != nil {
		slog.Error("failed to set up hardware", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	svc := diagnostics.New(hw)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	// Start HTTP/WebSocket server
	httpSrv := server.New(svc, cfg, hw.Backend)
	go func() {
		errCh <- httpSrv.Serve(ctx, cfg.HTTPAddr)
	}()

	// Start gRPC server
	grpcSrv := rpc.New(svc)
	go func() {
		errCh <- grpcSrv.ListenAndServe(ctx, cfg.GRPCAddr)
	}()

	slog.Info("diagnostics server starting", "http", cfg.HTTPAddr, "grpc", cfg.GRPCAddr, "hardware", hw)

	// Wait for shutdown signal or a server failure
	exit := 0
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		slog.Error("server error", "error", err)
		exit = 1
	}
	stop()

	for remaining := cap(errCh) - exit; remaining > 0; remaining-- {
		if err := <-errCh; err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}
	slog.Info("shutdown complete")
	os.Exit(exit)
}
