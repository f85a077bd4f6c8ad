// Package httpapi is the HTTP boundary: it extracts the bearer token and org selection from each
// request, runs the authorization pipeline and maps rejections to 401/403/429/503 JSON responses.
package httpapi

import (
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tenant-authz/internal/health"
	"tenant-authz/internal/policy/engine"
	projectrepo "tenant-authz/internal/project/repository"
)

// Deps holds the dependencies of the HTTP API.
type Deps struct {
	// Authorizer runs the authorization pipeline. Required.
	Authorizer Authorizer
	// Checker backs /health/ready. If nil, readiness always reports ok.
	Checker *health.Checker
	// Evaluator answers permission queries. If nil, the built-in role rules are used.
	Evaluator engine.Evaluator
	// Projects backs the org-scoped project listing. If nil, the route is not registered.
	Projects projectrepo.Repository
	Logger   logrus.FieldLogger
	Clock    clock.Clock
}

// NewRouter returns the HTTP handler:
//
//	GET /health                                  liveness, unauthenticated
//	GET /health/ready                            readiness of Postgres, Redis and the policy engine
//	GET /api/v1/session                          optional auth; reports whether the caller is authenticated
//	GET /api/v1/me                               caller's principal in the org from X-Organization-ID or the token
//	GET /api/v1/orgs/{orgId}/context             caller's principal in orgId
//	GET /api/v1/orgs/{orgId}/permissions         caller's allowed actions on ?resource= in orgId
//	GET /api/v1/orgs/{orgId}/projects            orgId's projects; requires read on projects
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Evaluator == nil {
		deps.Evaluator = engine.NewOPAEvaluator(nil, deps.Logger)
	}
	h := &handlers{checker: deps.Checker, evaluator: deps.Evaluator, projects: deps.Projects, clock: deps.Clock}
	required := Authorize(deps.Authorizer, false, deps.Clock)
	optional := Authorize(deps.Authorizer, true, deps.Clock)

	r := mux.NewRouter()
	r.HandleFunc("/health", h.liveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", h.readiness).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Handle("/session", optional(http.HandlerFunc(h.session))).Methods(http.MethodGet)
	api.Handle("/me", required(http.HandlerFunc(h.principal))).Methods(http.MethodGet)
	api.Handle("/orgs/{orgId}/context", required(http.HandlerFunc(h.principal))).Methods(http.MethodGet)
	api.Handle("/orgs/{orgId}/permissions", required(http.HandlerFunc(h.permissions))).Methods(http.MethodGet)
	if deps.Projects != nil {
		api.Handle("/orgs/{orgId}/projects", required(http.HandlerFunc(h.listProjects))).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return otelhttp.NewHandler(RequestLogger(deps.Logger)(r), "http.server")
}
