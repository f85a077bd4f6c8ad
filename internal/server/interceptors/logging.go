package interceptors

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tenant-authz/internal/authz"
)

// LoggingUnary returns a unary server interceptor that logs one line per RPC.
// Place it after AuthUnary so the authorized user and org are available.
func LoggingUnary(logger logrus.FieldLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		fields := logrus.Fields{
			"method":      info.FullMethod,
			"code":        code.String(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   ClientIP(ctx),
		}
		if userID, ok := authz.GetUserID(ctx); ok {
			fields["user_id"] = userID
		}
		if orgID, ok := authz.GetOrgID(ctx); ok {
			fields["org_id"] = orgID
		}
		entry := logger.WithFields(fields)
		switch code {
		case codes.OK:
			entry.Info("grpc request")
		case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
			entry.WithError(err).Error("grpc request failed")
		default:
			entry.Warn("grpc request failed")
		}
		return resp, err
	}
}
