// Package grpc runs the storefront's gRPC listener, which serves the standard
// health service for orchestrators and load balancers.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/example/medistore/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Checker reports whether a dependency is usable.
type Checker func(ctx context.Context) error

type HealthServer struct {
	config *config.ServerConfig
	health *health.Server
	srv    *grpc.Server
	logger *zap.Logger
}

func NewHealthServer(cfg *config.ServerConfig, logger *zap.Logger) *HealthServer {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus(cfg.Name, healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{config: cfg, health: hs, srv: srv, logger: logger}
}

func (s *HealthServer) Start() error {
	addr := s.config.Addr()
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.logger.Info("gRPC health server starting", zap.String("address", addr))
	return s.srv.Serve(lis)
}

// SetServing flips both the overall and the named service status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.config.Name, status)
}

// Watch runs checker every interval until ctx is done and reports NOT_SERVING
// while it fails.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration, checker Checker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy = s.check(ctx, checker, healthy)
		}
	}
}

func (s *HealthServer) check(ctx context.Context, checker Checker, wasHealthy bool) bool {
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := checker(pctx)
	healthy := err == nil
	if healthy != wasHealthy {
		if healthy {
			s.logger.Info("Storage check recovered")
		} else {
			s.logger.Warn("Storage check failing", zap.Error(err))
		}
	}
	s.SetServing(healthy)
	return healthy
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
