package interceptors

import (
	"context"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"tenant-authz/internal/authz"
)

const (
	bearerPrefix = "bearer "
	// OrgHeader selects the organization a request targets.
	OrgHeader = "x-organization-id"
)

// Authorizer runs the authorization pipeline for one request.
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) (authz.Decision, error)
}

// AuthUnary returns a unary server interceptor that runs every RPC through the authorization
// pipeline and attaches the resulting context. anonymousMethods is the set of full method names
// that may be called without a Bearer token (e.g. the gRPC health check). clk dates the retry
// delay of rate-limit rejections; nil means the wall clock.
func AuthUnary(pipeline Authorizer, anonymousMethods map[string]bool, clk clock.Clock) grpc.UnaryServerInterceptor {
	if clk == nil {
		clk = clock.New()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := authorize(ctx, pipeline, info.FullMethod, anonymousMethods[info.FullMethod], clk)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStream is the streaming counterpart of AuthUnary. The stream is authorized once, when it opens.
func AuthStream(pipeline Authorizer, anonymousMethods map[string]bool, clk clock.Clock) grpc.StreamServerInterceptor {
	if clk == nil {
		clk = clock.New()
	}
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authorize(ss.Context(), pipeline, info.FullMethod, anonymousMethods[info.FullMethod], clk)
		if err != nil {
			return err
		}
		return handler(srv, &authorizedStream{ServerStream: ss, ctx: ctx})
	}
}

func authorize(ctx context.Context, pipeline Authorizer, fullMethod string, anonymous bool, clk clock.Clock) (context.Context, error) {
	d, err := pipeline.Authorize(ctx, authz.Request{
		Token:          extractBearer(ctx),
		OrgID:          metadataValue(ctx, OrgHeader),
		Route:          fullMethod,
		ClientIP:       ClientIP(ctx),
		AllowAnonymous: anonymous,
	})
	if err != nil {
		return ctx, RejectionStatus(err, clk.Now())
	}
	if d.Quota.Limit > 0 {
		// Best-effort: a handler that already sent headers makes this a no-op.
		_ = grpc.SetHeader(ctx, metadata.Pairs(
			"x-ratelimit-limit", strconv.FormatInt(d.Quota.Limit, 10),
			"x-ratelimit-remaining", strconv.FormatInt(d.Quota.Remaining, 10),
			"x-ratelimit-reset", strconv.FormatInt(d.Quota.ResetEpoch, 10),
		))
	}
	return authz.WithAuthorization(ctx, d.Context), nil
}

type authorizedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authorizedStream) Context() context.Context { return s.ctx }

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	v := metadataValue(ctx, "authorization")
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// metadataValue returns the first trimmed value for key, or "".
func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
