package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"tenant-authz/internal/authz"
)

// OrgHeader selects the organization a request targets. It takes precedence over the orgId path variable.
const OrgHeader = "X-Organization-ID"

// Authorizer runs the authorization pipeline for one request.
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) (authz.Decision, error)
}

type requestInfoKey struct{}

// requestInfo is filled in by Authorize so the outer request logger can report who called.
type requestInfo struct {
	userID string
	orgID  string
}

// Authorize returns middleware that runs the request through the pipeline and attaches the
// authorization context. With anonymous set, a missing or invalid credential continues unauthenticated.
func Authorize(pipeline Authorizer, anonymous bool, clk clock.Clock) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := pipeline.Authorize(r.Context(), authz.Request{
				Token:          extractBearer(r),
				OrgID:          strings.TrimSpace(r.Header.Get(OrgHeader)),
				PathOrgID:      mux.Vars(r)["orgId"],
				Route:          routeName(r),
				ClientIP:       ClientIP(r),
				AllowAnonymous: anonymous,
			})
			if err != nil {
				writeRejection(w, err, clk.Now())
				return
			}
			if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
				info.userID = d.Context.SubjectID()
				info.orgID = d.Context.OrgID()
			}
			setQuotaHeaders(w, d.Quota)
			next.ServeHTTP(w, r.WithContext(authz.WithAuthorization(r.Context(), d.Context)))
		})
	}
}

// routeName is "METHOD /path/{template}" for matched routes, falling back to the raw path.
func routeName(r *http.Request) string {
	path := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			path = tmpl
		}
	}
	return r.Method + " " + path
}

func extractBearer(r *http.Request) string {
	v := r.Header.Get("Authorization")
	if len(v) < len("bearer ") || !strings.EqualFold(v[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(v[len("bearer "):])
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then the remote host, or "unknown".
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if s := strings.TrimSpace(first); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request with status, duration and the authorized user and org.
func RequestLogger(logger logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &requestInfo{}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

			fields := logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"client_ip":   ClientIP(r),
				"user_agent":  r.UserAgent(),
			}
			if info.userID != "" {
				fields["user_id"] = info.userID
			}
			if info.orgID != "" {
				fields["org_id"] = info.orgID
			}
			logger.WithFields(fields).Info("http request")
		})
	}
}
