package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported next to the overall "" status.
const ServiceName = "energycontracts.Api"

// NewGRPCServer builds a gRPC server carrying only the health and reflection
// services, for orchestration probes.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	setServing(hs, healthpb.HealthCheckResponse_NOT_SERVING)
	return srv, hs
}

func setServing(hs *health.Server, status healthpb.HealthCheckResponse_ServingStatus) {
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
}

// WatchStore pings the store every interval and mirrors the result into hs
// until ctx ends, then marks the server NOT_SERVING.
func WatchStore(ctx context.Context, hs *health.Server, store Pinger, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	current := healthpb.HealthCheckResponse_UNKNOWN
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		next := healthpb.HealthCheckResponse_SERVING
		if err := store.Ping(pingCtx); err != nil {
			next = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("health.grpc.store_unreachable", "error", err)
		}
		if next != current {
			logger.Info("health.grpc.status", "status", next.String())
			current = next
		}
		setServing(hs, next)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			hs.Shutdown()
			return
		}
	}
}
