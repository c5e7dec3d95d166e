package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/koompi/nimmit-assistant/pkg/config"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

// healthPollInterval is how often the gRPC health status is refreshed.
const healthPollInterval = 10 * time.Second

const shutdownTimeout = 10 * time.Second

// NewHealthServer returns a gRPC health service whose overall status
// follows pinger. The status is refreshed until ctx is done.
func NewHealthServer(ctx context.Context, pinger Pinger, logger *slog.Logger) *health.Server {
	hs := health.NewServer()
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if pinger != nil {
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := pinger.Ping(pctx)
			cancel()
			if err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				if logger != nil {
					logger.Warn("store unreachable", "error", err)
				}
			}
		}
		hs.SetServingStatus("", status)
	}
	update()

	go func() {
		ticker := time.NewTicker(healthPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.Shutdown()
				return
			case <-ticker.C:
				update()
			}
		}
	}()
	return hs
}

// Serve runs the HTTP API and, when cfg.HealthAddr is set, the gRPC health
// endpoint until ctx is cancelled.
func Serve(ctx context.Context, cfg config.ServerConfig, s *Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 2)

	var grpcServer *grpc.Server
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			return nimerrors.Wrapf(err, "failed to listen on %s", cfg.HealthAddr)
		}
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, NewHealthServer(ctx, s.store, logger))

		go func() {
			logger.Info("gRPC health endpoint listening", "addr", cfg.HealthAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- nimerrors.Wrap(err, "gRPC health server failed")
			}
		}()
	}

	go func() {
		logger.Info("HTTP API listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- nimerrors.Wrap(err, "HTTP server failed")
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = nimerrors.Wrap(err, "HTTP shutdown failed")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return serveErr
}
