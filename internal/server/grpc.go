package server

import (
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tenant-authz/internal/audit"
	"tenant-authz/internal/health"
	healthhandler "tenant-authz/internal/health/handler"
	"tenant-authz/internal/server/interceptors"
)

// Deps holds the dependencies of the gRPC server.
type Deps struct {
	// Authorizer runs every RPC through the authorization pipeline. Required.
	Authorizer interceptors.Authorizer
	// AuditLogger records authorized RPCs. If nil, no RPCs are audited.
	AuditLogger audit.AuditLogger
	// Logger receives one line per RPC. If nil, the logrus standard logger is used.
	Logger logrus.FieldLogger
	// Checker drives the grpc.health.v1 status. If nil, health always reports SERVING.
	Checker *health.Checker
	// Clock dates rate-limit retry delays. If nil, the wall clock is used.
	Clock clock.Clock
}

// AnonymousMethods may be called without a Bearer token.
var AnonymousMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a server with the interceptor chain auth → logging → audit and the
// otelgrpc stats handler installed, and all services registered. extra options are appended.
func NewGRPCServer(deps Deps, extra ...grpc.ServerOption) *grpc.Server {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AuthUnary(deps.Authorizer, AnonymousMethods, deps.Clock),
			interceptors.LoggingUnary(logger, AnonymousMethods),
			interceptors.AuditUnary(deps.AuditLogger, AnonymousMethods),
		),
		grpc.ChainStreamInterceptor(
			interceptors.AuthStream(deps.Authorizer, AnonymousMethods, deps.Clock),
		),
	}
	s := grpc.NewServer(append(opts, extra...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the gRPC services with the given registrar.
//
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.Checker))
}
