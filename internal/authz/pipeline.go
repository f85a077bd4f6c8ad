// Package authz chains credential verification, tenant resolution and the quota guard into a
// single per-request decision.
package authz

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"tenant-authz/internal/authz/domain"
	membershipdomain "tenant-authz/internal/membership/domain"
	"tenant-authz/internal/ratelimit"
	"tenant-authz/internal/security"
	"tenant-authz/internal/tenant"
	authzotel "tenant-authz/internal/telemetry/otel"
)

// Verifier validates a bearer token.
type Verifier interface {
	Verify(token string) (*domain.Identity, error)
}

// TenantResolver confirms the caller's membership in the selected org.
type TenantResolver interface {
	Resolve(ctx context.Context, identity domain.Identity, explicitOrgID string) (*membershipdomain.Membership, error)
}

// QuotaGuard counts one attempt against a key.
type QuotaGuard interface {
	Check(ctx context.Context, key string, limit, windowSeconds int64) ratelimit.Result
}

// RejectionAuditor records rejected requests. Implementations must not block for long and must not fail the request.
type RejectionAuditor interface {
	LogRejection(ctx context.Context, req Request, subjectID, orgID string, reason domain.Reason)
}

// Request carries the inputs extracted by a transport boundary.
type Request struct {
	// Token is the bearer credential with the scheme prefix already removed. Empty means none was sent.
	Token string
	// OrgID is the explicit organization header or metadata value.
	OrgID string
	// PathOrgID is the orgId path parameter, if the route has one.
	PathOrgID string
	// Route identifies the operation (HTTP method and path template, or gRPC full method).
	Route    string
	ClientIP string
	// AllowAnonymous marks routes that may be served without a credential.
	AllowAnonymous bool
}

// Quota configures the limits the pipeline applies.
type Quota struct {
	Limit         int64
	WindowSeconds int64
	Scope         ratelimit.Scope
	// AnonymousLimit applies to anonymous requests per client IP and route; zero disables it.
	AnonymousLimit int64
}

// Decision is the result of an authorized request.
type Decision struct {
	Context domain.AuthorizationContext
	// Quota is the guard result; zero when no quota was checked.
	Quota ratelimit.Result
}

// Pipeline authorizes requests. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	stages  Stages
	quota   Quota
	logger  logrus.FieldLogger
	metrics *authzotel.Metrics
	auditor RejectionAuditor
	now     func() time.Time
}

// Stages groups the stage collaborators.
type Stages struct {
	Verifier Verifier
	Resolver TenantResolver
	Guard    QuotaGuard
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for rejections.
func WithLogger(l logrus.FieldLogger) Option { return func(p *Pipeline) { p.logger = l } }

// WithMetrics sets the decision and stage instruments.
func WithMetrics(m *authzotel.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithAuditor records every rejection.
func WithAuditor(a RejectionAuditor) Option { return func(p *Pipeline) { p.auditor = a } }

// NewPipeline returns a Pipeline over the given stages.
func NewPipeline(stages Stages, quota Quota, opts ...Option) *Pipeline {
	if quota.Scope == "" {
		quota.Scope = ratelimit.ScopeRoute
	}
	p := &Pipeline{
		stages:  stages,
		quota:   quota,
		logger:  logrus.StandardLogger(),
		metrics: authzotel.NoopMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Authorize runs START → CredentialVerified → TenantResolved → QuotaChecked → AUTHORIZED, stopping at the
// first failure. Failures are returned as *domain.Rejection.
func (p *Pipeline) Authorize(ctx context.Context, req Request) (Decision, error) {
	if req.Token == "" {
		if req.AllowAnonymous {
			return p.anonymous(ctx, req)
		}
		return Decision{}, p.reject(ctx, req, "", "", domain.Reject(domain.ReasonInvalidCredential, errors.New("missing bearer token")))
	}

	start := p.now()
	identity, err := p.stages.Verifier.Verify(req.Token)
	p.metrics.RecordStage(ctx, "verify", p.now().Sub(start))
	if err != nil {
		if req.AllowAnonymous {
			// Optional auth ignores a bad credential rather than rejecting a route that needs none.
			p.logger.WithError(err).WithField("route", req.Route).Debug("authz: ignoring invalid credential on anonymous route")
			return p.anonymous(ctx, req)
		}
		return Decision{}, p.reject(ctx, req, "", "", domain.Reject(credentialReason(err), err))
	}

	explicit := tenant.SelectOrg(req.OrgID, req.PathOrgID)
	start = p.now()
	membership, err := p.stages.Resolver.Resolve(ctx, *identity, explicit)
	p.metrics.RecordStage(ctx, "resolve", p.now().Sub(start))
	if err != nil {
		orgID := tenant.SelectOrg(explicit, identity.IssuedOrgID)
		return Decision{}, p.reject(ctx, req, identity.SubjectID, orgID, domain.Reject(resolveReason(err), err))
	}

	authCtx := domain.NewAuthorizationContext(*identity, membership)
	key := ratelimit.IdentityKey(p.quota.Scope, authCtx.SubjectID(), authCtx.OrgID(), req.Route)
	start = p.now()
	res := p.stages.Guard.Check(ctx, key, p.quota.Limit, p.quota.WindowSeconds)
	p.metrics.RecordStage(ctx, "quota", p.now().Sub(start))
	if !res.Allowed {
		rej := domain.Reject(domain.ReasonRateExceeded, nil)
		rej.Limit, rej.Remaining, rej.ResetEpoch = res.Limit, res.Remaining, res.ResetEpoch
		return Decision{}, p.reject(ctx, req, authCtx.SubjectID(), authCtx.OrgID(), rej)
	}

	p.metrics.RecordDecision(ctx, authzotel.OutcomeAuthorized, "")
	return Decision{Context: authCtx, Quota: res}, nil
}

func (p *Pipeline) anonymous(ctx context.Context, req Request) (Decision, error) {
	d := Decision{Context: domain.AnonymousContext()}
	if p.quota.AnonymousLimit > 0 {
		res := p.stages.Guard.Check(ctx, ratelimit.AnonymousKey(req.ClientIP, req.Route), p.quota.AnonymousLimit, p.quota.WindowSeconds)
		if !res.Allowed {
			rej := domain.Reject(domain.ReasonRateExceeded, nil)
			rej.Limit, rej.Remaining, rej.ResetEpoch = res.Limit, res.Remaining, res.ResetEpoch
			return Decision{}, p.reject(ctx, req, "", "", rej)
		}
		d.Quota = res
	}
	p.metrics.RecordDecision(ctx, authzotel.OutcomeAnonymous, "")
	return d, nil
}

func (p *Pipeline) reject(ctx context.Context, req Request, subjectID, orgID string, rej *domain.Rejection) *domain.Rejection {
	entry := p.logger.WithFields(logrus.Fields{
		"route":     req.Route,
		"reason":    string(rej.Reason),
		"client_ip": req.ClientIP,
	})
	if subjectID != "" {
		entry = entry.WithField("user_id", subjectID)
	}
	if orgID != "" {
		entry = entry.WithField("org_id", orgID)
	}
	if rej.Err != nil {
		entry = entry.WithError(rej.Err)
	}
	if rej.Reason == domain.ReasonStoreUnavailable {
		entry.Error("authz: request rejected")
	} else {
		entry.Info("authz: request rejected")
	}
	p.metrics.RecordDecision(ctx, authzotel.OutcomeRejected, string(rej.Reason))
	if p.auditor != nil {
		p.auditor.LogRejection(ctx, req, subjectID, orgID, rej.Reason)
	}
	return rej
}

func credentialReason(err error) domain.Reason {
	if errors.Is(err, security.ErrExpiredCredential) {
		return domain.ReasonExpiredCredential
	}
	return domain.ReasonInvalidCredential
}

func resolveReason(err error) domain.Reason {
	switch {
	case errors.Is(err, tenant.ErrNoOrgContext):
		return domain.ReasonNoOrgContext
	case errors.Is(err, tenant.ErrAccessDenied):
		return domain.ReasonAccessDenied
	}
	// Anything else is a storage fault; authorization fails closed.
	return domain.ReasonStoreUnavailable
}
