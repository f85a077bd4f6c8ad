package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"tenant-authz/internal/policy/repository"
)

const (
	allowQuery = "data.tenantauthz.rbac.allow"

	compiledCacheSize = 256
	compiledCacheTTL  = 10 * time.Minute
)

// Built-in role permissions. Org policies in the same package add allow rules; they cannot remove these.
const defaultRegoPolicy = `package tenantauthz.rbac

default allow := false

admin_roles := {"owner", "admin"}

allow if {
	admin_roles[input.role]
}

allow if {
	input.role == "member"
	input.action in {"read", "write"}
	input.resource in {"projects", "tasks"}
}

allow if {
	input.role == "viewer"
	input.action == "read"
}
`

var errNoResult = errors.New("policy query returned no result")

// OPAEvaluator evaluates role permissions using OPA Rego. Compiled module sets are cached by
// content hash, so an edited org policy is picked up on the next request.
type OPAEvaluator struct {
	policyRepo repository.Repository
	logger     logrus.FieldLogger
	compiled   *lru.LRU[string, *ast.Compiler]
	compiling  singleflight.Group
}

// NewOPAEvaluator returns an OPA-based policy evaluator. policyRepo may be nil, in which case only
// the built-in rules apply.
func NewOPAEvaluator(policyRepo repository.Repository, logger logrus.FieldLogger) *OPAEvaluator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &OPAEvaluator{
		policyRepo: policyRepo,
		logger:     logger,
		compiled:   lru.NewLRU[string, *ast.Compiler](compiledCacheSize, nil, compiledCacheTTL),
	}
}

// HealthCheck verifies that the in-process Rego engine can compile and evaluate the built-in policy.
// Does not call the policy repo or database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.evaluate(ctx, []string{defaultRegoPolicy}, map[string]interface{}{
		"org_id":   "",
		"role":     "viewer",
		"action":   ActionRead,
		"resource": "projects",
	})
	return err
}

// Allowed reports whether in.Role may perform in.Action on in.Resource.
// Org policies that fail to load or compile are logged and skipped; an evaluation error denies.
func (e *OPAEvaluator) Allowed(ctx context.Context, in Input) (bool, error) {
	if in.Role == "" {
		return false, nil
	}
	input := map[string]interface{}{
		"org_id":   in.OrgID,
		"role":     string(in.Role),
		"action":   in.Action,
		"resource": in.Resource,
	}

	policies := []string{defaultRegoPolicy}
	if extra := e.orgPolicies(ctx, in.OrgID); len(extra) > 0 {
		allowed, err := e.evaluate(ctx, append(policies, extra...), input)
		if err == nil {
			return allowed, nil
		}
		e.logger.WithFields(logrus.Fields{"org_id": in.OrgID, "error": err}).
			Warn("policy: org policies rejected, using built-in rules")
	}
	return e.evaluate(ctx, policies, input)
}

func (e *OPAEvaluator) orgPolicies(ctx context.Context, orgID string) []string {
	if e.policyRepo == nil || orgID == "" {
		return nil
	}
	enabled, err := e.policyRepo.GetEnabledPoliciesByOrg(ctx, orgID)
	if err != nil {
		e.logger.WithFields(logrus.Fields{"org_id": orgID, "error": err}).
			Warn("policy: failed to load org policies")
		return nil
	}
	var out []string
	for _, p := range enabled {
		if p.Enabled && p.Rules != "" {
			out = append(out, p.Rules)
		}
	}
	return out
}

// compile returns the compiler for policies, compiling at most once per distinct module set.
func (e *OPAEvaluator) compile(policies []string) (*ast.Compiler, error) {
	h := sha256.New()
	for _, p := range policies {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	key := hex.EncodeToString(h.Sum(nil))
	if c, ok := e.compiled.Get(key); ok {
		return c, nil
	}
	v, err, _ := e.compiling.Do(key, func() (interface{}, error) {
		modules := make(map[string]string, len(policies))
		for i, p := range policies {
			modules[fmt.Sprintf("policy_%d.rego", i)] = p
		}
		c, err := ast.CompileModules(modules)
		if err != nil {
			return nil, err
		}
		e.compiled.Add(key, c)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	return v.(*ast.Compiler), nil
}

func (e *OPAEvaluator) evaluate(ctx context.Context, policies []string, input map[string]interface{}) (bool, error) {
	compiler, err := e.compile(policies)
	if err != nil {
		return false, err
	}
	rs, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval policies: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, errNoResult
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy allow is %T, want bool", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}
