// Package main initializes and runs the deciderd sidecar.
//
// It acts as the composition root: it dials the upstream decider
// service, fronts it with the schemaless gRPC data plane and a local
// metadata cache, and exposes the read-only admin API plus the
// observability endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"

	"github.com/variantlab/decider/internal/adminapi"
	"github.com/variantlab/decider/internal/config"
	"github.com/variantlab/decider/internal/dataapi"
	"github.com/variantlab/decider/internal/decider"
	"github.com/variantlab/decider/internal/logger"
	"github.com/variantlab/decider/internal/observability"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run executes the service lifecycle.
func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	// -------------------------------------------------------------------------
	// 2. Upstream Connection
	// -------------------------------------------------------------------------
	conn, err := grpc.NewClient(cfg.Engine.UpstreamAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("failed to dial upstream %s: %w", cfg.Engine.UpstreamAddr, err)
	}
	defer conn.Close()

	remote := dataapi.NewRemoteEngine(conn, cfg.Engine.CallTimeout)
	source := decider.StaticSource{Eng: remote}

	// -------------------------------------------------------------------------
	// 3. Data Plane (gRPC)
	// -------------------------------------------------------------------------
	api, err := dataapi.NewAPI(remote, cfg.DataPlane.CacheCapacity, cfg.DataPlane.CacheTTL, log)
	if err != nil {
		return fmt.Errorf("failed to build data plane: %w", err)
	}
	defer api.Close()

	listener, err := net.Listen("tcp", ":"+cfg.DataPlane.Port)
	if err != nil {
		return fmt.Errorf("failed to bind port %s: %w", cfg.DataPlane.Port, err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(dataapi.MetricsInterceptor()),
	)
	api.Register(grpcServer)

	// Reflection lets grpcurl inspect the API without a local descriptor.
	reflection.Register(grpcServer)

	errChan := make(chan error, 1)
	go func() {
		log.Info("gRPC data plane listening", slog.String("port", cfg.DataPlane.Port))
		if err := grpcServer.Serve(listener); err != nil {
			errChan <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 4. Admin API (HTTP)
	// -------------------------------------------------------------------------
	admin := adminapi.NewAPI(source, log)
	adminServer := &http.Server{
		Addr:              ":" + cfg.Admin.Port,
		Handler:           admin.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("admin API listening", slog.String("port", cfg.Admin.Port))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("failed to serve admin API: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 5. Observability (probes + metrics)
	// -------------------------------------------------------------------------
	obs := observability.NewServer(log, &cfg.Observability, upstreamChecker{conn: conn})
	obsErr := obs.Start()

	// -------------------------------------------------------------------------
	// 6. Graceful Shutdown
	// -------------------------------------------------------------------------
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case err := <-obsErr:
		return err
	case sig := <-sigChan:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// GracefulStop blocks until pending RPCs finish; bound it with the
	// configured shutdown timeout.
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin API shutdown error", slog.String("error", err.Error()))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn("observability shutdown error", slog.String("error", err.Error()))
	}

	log.Info("service exited")
	return nil
}

// upstreamChecker gates readiness on the upstream gRPC connection state.
type upstreamChecker struct {
	conn *grpc.ClientConn
}

func (c upstreamChecker) Name() string { return "upstream" }

func (c upstreamChecker) Check(_ context.Context) error {
	state := c.conn.GetState()
	switch state {
	case connectivity.Ready, connectivity.Idle:
		return nil
	default:
		return fmt.Errorf("upstream connection is %s", state)
	}
}
