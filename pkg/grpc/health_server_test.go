package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/example/medistore/pkg/config"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func status(t *testing.T, s *HealthServer, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthServer_Serving(t *testing.T) {
	s := NewHealthServer(&config.ServerConfig{Name: "storefront", Host: "127.0.0.1", Port: 0}, zap.NewNop())

	if got := status(t, s, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall = %v", got)
	}
	if got := status(t, s, "storefront"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("storefront = %v", got)
	}
}

func TestHealthServer_CheckerFlipsStatus(t *testing.T) {
	s := NewHealthServer(&config.ServerConfig{Name: "storefront"}, zap.NewNop())
	ctx := context.Background()

	failing := func(context.Context) error { return errors.New("redis: connection refused") }
	if s.check(ctx, failing, true) {
		t.Error("failing check reported healthy")
	}
	if got := status(t, s, "storefront"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("after failure = %v", got)
	}

	ok := func(context.Context) error { return nil }
	if !s.check(ctx, ok, false) {
		t.Error("passing check reported unhealthy")
	}
	if got := status(t, s, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("after recovery = %v", got)
	}
}
