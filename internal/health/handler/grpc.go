package handler

import (
	"context"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tenant-authz/internal/health"
)

// Server implements grpc.health.v1.Health. Check runs the readiness checks on demand;
// Watch is not supported.
type Server struct {
	healthpb.UnimplementedHealthServer
	checker *health.Checker
}

// NewServer returns a Health server backed by checker. A nil checker always reports SERVING.
func NewServer(checker *health.Checker) *Server {
	return &Server{checker: checker}
}

// Check returns SERVING when every readiness check passes and NOT_SERVING otherwise.
// A failing dependency is reported through the status, never as an RPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if s.checker == nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	if !s.checker.Check(ctx).Ready() {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
