package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"tenant-authz/internal/authz"
	authzdomain "tenant-authz/internal/authz/domain"
	"tenant-authz/internal/health"
	"tenant-authz/internal/platform/rbac"
	"tenant-authz/internal/policy/engine"
	projectdomain "tenant-authz/internal/project/domain"
	projectrepo "tenant-authz/internal/project/repository"
)

type handlers struct {
	checker   *health.Checker
	evaluator engine.Evaluator
	projects  projectrepo.Repository
	clock     clock.Clock
}

func (h *handlers) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    health.StatusOK,
		"timestamp": h.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) readiness(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		writeJSON(w, http.StatusOK, health.Report{Status: health.StatusOK, Checks: map[string]string{}})
		return
	}
	report := h.checker.Check(r.Context())
	status := http.StatusOK
	if !report.Ready() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

type sessionResponse struct {
	Authenticated bool                   `json:"authenticated"`
	Principal     *authzdomain.Principal `json:"principal,omitempty"`
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok || ac.Anonymous() {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	p := ac.Principal()
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: true, Principal: &p})
}

func (h *handlers) principal(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok || ac.Anonymous() {
		writeError(w, http.StatusUnauthorized, authzdomain.ReasonInvalidCredential.Message())
		return
	}
	writeJSON(w, http.StatusOK, ac.Principal())
}

type permissionsResponse struct {
	OrgID    string          `json:"orgId"`
	Role     string          `json:"role"`
	Resource string          `json:"resource"`
	Actions  map[string]bool `json:"actions"`
}

func (h *handlers) permissions(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok || ac.Anonymous() {
		writeError(w, http.StatusUnauthorized, authzdomain.ReasonInvalidCredential.Message())
		return
	}
	resource := strings.TrimSpace(r.URL.Query().Get("resource"))
	if resource == "" {
		writeError(w, http.StatusBadRequest, "resource is required")
		return
	}
	out := permissionsResponse{
		OrgID:    ac.OrgID(),
		Role:     string(ac.Role()),
		Resource: resource,
		Actions:  make(map[string]bool, 3),
	}
	for _, action := range []string{engine.ActionRead, engine.ActionWrite, engine.ActionDelete} {
		allowed, err := h.evaluator.Allowed(r.Context(), engine.Input{
			OrgID:    ac.OrgID(),
			Role:     ac.Role(),
			Action:   action,
			Resource: resource,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		out.Actions[action] = allowed
	}
	writeJSON(w, http.StatusOK, out)
}

type projectsResponse struct {
	OrgID    string                   `json:"orgId"`
	Projects []*projectdomain.Project `json:"projects"`
}

func (h *handlers) listProjects(w http.ResponseWriter, r *http.Request) {
	p, err := rbac.RequirePermission(r.Context(), h.evaluator, engine.ActionRead, "projects")
	if err != nil {
		writeStatusError(w, err)
		return
	}
	list, err := h.projects.ListByOrg(r.Context(), p.OrgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if list == nil {
		list = []*projectdomain.Project{}
	}
	writeJSON(w, http.StatusOK, projectsResponse{OrgID: p.OrgID, Projects: list})
}
