package authz

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"tenant-authz/internal/authz/domain"
	"tenant-authz/internal/cache"
	membershipdomain "tenant-authz/internal/membership/domain"
	"tenant-authz/internal/ratelimit"
	"tenant-authz/internal/security"
	"tenant-authz/internal/tenant"
)

type memberStore struct {
	mu      sync.Mutex
	members map[string]membershipdomain.Role
	err     error
	calls   int
}

func (m *memberStore) GetRole(_ context.Context, userID, orgID string) (membershipdomain.Role, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", false, m.err
	}
	role, ok := m.members[userID+":"+orgID]
	return role, ok, nil
}

type userStore struct{ inactive map[string]bool }

func (u userStore) IsActive(_ context.Context, userID string) (bool, error) {
	return !u.inactive[userID], nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	reasons []domain.Reason
}

func (a *recordingAuditor) LogRejection(_ context.Context, _ Request, _, _ string, reason domain.Reason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
}

type fixture struct {
	pipeline *Pipeline
	issuer   *security.Issuer
	members  *memberStore
	redis    *miniredis.Miniredis
	clock    *clock.Mock
	auditor  *recordingAuditor
}

func newFixture(t *testing.T, quota Quota) *fixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore(cache.Options{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	members := &memberStore{members: map[string]membershipdomain.Role{
		"user-1:org-1": membershipdomain.RoleAdmin,
		"user-1:org-3": membershipdomain.RoleViewer,
	}}
	auditor := &recordingAuditor{}
	p := NewPipeline(Stages{
		Verifier: security.NewTestVerifier(clk),
		Resolver: tenant.NewResolver(members, userStore{inactive: map[string]bool{"user-9": true}}),
		Guard:    ratelimit.NewGuard(store, ratelimit.WithClock(clk), ratelimit.WithLogger(logger)),
	}, quota, WithLogger(logger), WithAuditor(auditor))

	return &fixture{
		pipeline: p,
		issuer:   security.NewTestIssuer(clk),
		members:  members,
		redis:    mr,
		clock:    clk,
		auditor:  auditor,
	}
}

func defaultQuota() Quota {
	return Quota{Limit: 100, WindowSeconds: 3600, Scope: ratelimit.ScopeRoute}
}

func (f *fixture) token(t *testing.T, userID, orgID, role string) string {
	t.Helper()
	tok, _, _, err := f.issuer.IssueAccess(userID, userID+"@example.com", orgID, role)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	return tok
}

func wantReason(t *testing.T, err error, want domain.Reason) *domain.Rejection {
	t.Helper()
	var rej *domain.Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *domain.Rejection", err)
	}
	if rej.Reason != want {
		t.Fatalf("reason = %q, want %q", rej.Reason, want)
	}
	return rej
}

func TestAuthorize_ExplicitOrgHeader(t *testing.T) {
	f := newFixture(t, defaultQuota())
	d, err := f.pipeline.Authorize(context.Background(), Request{
		Token: f.token(t, "user-1", "org-3", "viewer"),
		OrgID: "org-1",
		Route: "GET /projects",
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	got := d.Context.Principal()
	if got.OrgID != "org-1" || got.Role != "admin" || got.SubjectID != "user-1" {
		t.Errorf("principal = %+v, want user-1/org-1/admin", got)
	}
	if d.Quota.TotalHits != 1 || d.Quota.Remaining != 99 {
		t.Errorf("quota = %+v", d.Quota)
	}
}

func TestAuthorize_AdvisoryOrgWithoutMembership(t *testing.T) {
	f := newFixture(t, defaultQuota())
	_, err := f.pipeline.Authorize(context.Background(), Request{
		Token: f.token(t, "user-1", "org-2", "owner"),
		Route: "GET /projects",
	})
	wantReason(t, err, domain.ReasonAccessDenied)
	if len(f.redis.Keys()) != 0 {
		t.Errorf("quota consumed before tenant resolution: %v", f.redis.Keys())
	}
}

func TestAuthorize_OrgPrecedence(t *testing.T) {
	f := newFixture(t, defaultQuota())
	tok := f.token(t, "user-1", "org-1", "admin")

	d, err := f.pipeline.Authorize(context.Background(), Request{Token: tok, PathOrgID: "org-3", Route: "r"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Context.OrgID() != "org-3" || d.Context.Role() != membershipdomain.RoleViewer {
		t.Errorf("path org: context = %+v", d.Context.Principal())
	}

	d, err = f.pipeline.Authorize(context.Background(), Request{Token: tok, OrgID: "org-1", PathOrgID: "org-3", Route: "r"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Context.OrgID() != "org-1" {
		t.Errorf("header should win over path, got org %q", d.Context.OrgID())
	}
}

func TestAuthorize_NoOrgContext(t *testing.T) {
	f := newFixture(t, defaultQuota())
	_, err := f.pipeline.Authorize(context.Background(), Request{Token: f.token(t, "user-1", "", ""), Route: "r"})
	wantReason(t, err, domain.ReasonNoOrgContext)
}

func TestAuthorize_InactiveUser(t *testing.T) {
	f := newFixture(t, defaultQuota())
	f.members.members["user-9:org-1"] = membershipdomain.RoleOwner
	_, err := f.pipeline.Authorize(context.Background(), Request{Token: f.token(t, "user-9", "org-1", "owner"), Route: "r"})
	wantReason(t, err, domain.ReasonAccessDenied)
}

func TestAuthorize_ExpiredVersusTampered(t *testing.T) {
	f := newFixture(t, defaultQuota())

	expired := f.token(t, "user-1", "org-1", "admin")
	f.clock.Add(16 * time.Minute)
	_, err := f.pipeline.Authorize(context.Background(), Request{Token: expired, Route: "r"})
	wantReason(t, err, domain.ReasonExpiredCredential)

	other, err := security.NewIssuer([]byte("another-secret-another-secret-123456"), "", "", 15*time.Minute, f.clock)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	forged, _, _, err := other.IssueAccess("user-1", "u@example.com", "org-1", "owner")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	_, err = f.pipeline.Authorize(context.Background(), Request{Token: forged, Route: "r"})
	wantReason(t, err, domain.ReasonInvalidCredential)

	if f.members.calls != 0 {
		t.Errorf("membership lookups = %d, want 0 for rejected credentials", f.members.calls)
	}
}

func TestAuthorize_MissingCredential(t *testing.T) {
	f := newFixture(t, defaultQuota())
	_, err := f.pipeline.Authorize(context.Background(), Request{Route: "r"})
	wantReason(t, err, domain.ReasonInvalidCredential)
}

func TestAuthorize_AnonymousRoute(t *testing.T) {
	f := newFixture(t, defaultQuota())

	d, err := f.pipeline.Authorize(context.Background(), Request{Route: "GET /health", AllowAnonymous: true})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Context.Anonymous() || d.Context.OrgID() != "" {
		t.Errorf("context = %+v, want anonymous without org", d.Context.Principal())
	}
	if len(f.redis.Keys()) != 0 {
		t.Errorf("anonymous quota disabled but keys = %v", f.redis.Keys())
	}

	d, err = f.pipeline.Authorize(context.Background(), Request{Token: "garbage", Route: "GET /health", AllowAnonymous: true})
	if err != nil {
		t.Fatalf("Authorize with invalid token on anonymous route: %v", err)
	}
	if !d.Context.Anonymous() {
		t.Error("invalid token on anonymous route should continue anonymously")
	}
}

func TestAuthorize_AnonymousRouteWithValidToken(t *testing.T) {
	f := newFixture(t, defaultQuota())
	d, err := f.pipeline.Authorize(context.Background(), Request{
		Token: f.token(t, "user-1", "org-1", "admin"), Route: "GET /public", AllowAnonymous: true,
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Context.Anonymous() || d.Context.OrgID() != "org-1" {
		t.Errorf("context = %+v, want authenticated org-1", d.Context.Principal())
	}
}

func TestAuthorize_AnonymousQuota(t *testing.T) {
	q := defaultQuota()
	q.AnonymousLimit = 2
	f := newFixture(t, q)
	req := Request{Route: "GET /public", ClientIP: "10.0.0.7", AllowAnonymous: true}

	for i := 0; i < 2; i++ {
		if _, err := f.pipeline.Authorize(context.Background(), req); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	_, err := f.pipeline.Authorize(context.Background(), req)
	wantReason(t, err, domain.ReasonRateExceeded)
	if !f.redis.Exists(ratelimit.AnonymousKey("10.0.0.7", "GET /public")) {
		t.Error("anonymous key not written")
	}
}

func TestAuthorize_RateExceeded(t *testing.T) {
	q := defaultQuota()
	q.Limit, q.WindowSeconds = 5, 60
	f := newFixture(t, q)
	req := Request{Token: f.token(t, "user-1", "org-1", "admin"), Route: "POST /tasks"}

	for i := 0; i < 5; i++ {
		if _, err := f.pipeline.Authorize(context.Background(), req); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	_, err := f.pipeline.Authorize(context.Background(), req)
	rej := wantReason(t, err, domain.ReasonRateExceeded)
	if rej.Remaining != 0 || rej.Limit != 5 {
		t.Errorf("rejection = %+v, want remaining 0 limit 5", rej)
	}
	if want := f.clock.Now().Unix() + 60; rej.ResetEpoch != want {
		t.Errorf("resetEpoch = %d, want %d", rej.ResetEpoch, want)
	}

	got, _ := f.redis.Get(ratelimit.IdentityKey(ratelimit.ScopeRoute, "user-1", "org-1", "POST /tasks"))
	if got != "6" {
		t.Errorf("counter = %s, want 6 (every attempt counts)", got)
	}

	f.redis.FastForward(60 * time.Second)
	f.clock.Add(60 * time.Second)
	// Token TTL is 15m; a minute later it is still valid.
	d, err := f.pipeline.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("after window: %v", err)
	}
	if d.Quota.TotalHits != 1 {
		t.Errorf("totalHits after window = %d, want 1", d.Quota.TotalHits)
	}
}

func TestAuthorize_CounterStoreDownFailsOpen(t *testing.T) {
	f := newFixture(t, defaultQuota())
	f.redis.SetError("ERR i/o timeout")

	d, err := f.pipeline.Authorize(context.Background(), Request{Token: f.token(t, "user-1", "org-1", "admin"), Route: "r"})
	if err != nil {
		t.Fatalf("Authorize with counter store down: %v", err)
	}
	if !d.Quota.FailedOpen || d.Context.OrgID() != "org-1" {
		t.Errorf("decision = %+v, want fail-open authorization", d)
	}
}

func TestAuthorize_MembershipStoreDownFailsClosed(t *testing.T) {
	f := newFixture(t, defaultQuota())
	f.members.err = context.DeadlineExceeded

	_, err := f.pipeline.Authorize(context.Background(), Request{Token: f.token(t, "user-1", "org-1", "admin"), Route: "r"})
	rej := wantReason(t, err, domain.ReasonStoreUnavailable)
	if !errors.Is(rej, domain.ErrStoreUnavailable) {
		t.Errorf("rejection cause = %v, want ErrStoreUnavailable", rej.Err)
	}
}

func TestAuthorize_AuditsRejections(t *testing.T) {
	f := newFixture(t, defaultQuota())
	_, _ = f.pipeline.Authorize(context.Background(), Request{Route: "r"})
	_, _ = f.pipeline.Authorize(context.Background(), Request{Token: f.token(t, "user-1", "org-2", ""), Route: "r"})
	_, _ = f.pipeline.Authorize(context.Background(), Request{Token: f.token(t, "user-1", "org-1", ""), Route: "r"})

	want := []domain.Reason{domain.ReasonInvalidCredential, domain.ReasonAccessDenied}
	if len(f.auditor.reasons) != len(want) {
		t.Fatalf("audited = %v, want %v", f.auditor.reasons, want)
	}
	for i := range want {
		if f.auditor.reasons[i] != want[i] {
			t.Errorf("audited[%d] = %q, want %q", i, f.auditor.reasons[i], want[i])
		}
	}
}

func TestAuthorize_ConcurrentRequestsShareQuota(t *testing.T) {
	q := defaultQuota()
	q.Limit = 10
	f := newFixture(t, q)
	tok := f.token(t, "user-1", "org-1", "admin")

	const workers = 30
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		allowed  int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pipeline.Authorize(context.Background(), Request{Token: tok, OrgID: "org-1", Route: "r"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				allowed++
				return
			}
			if reason, _ := domain.ReasonOf(err); reason == domain.ReasonRateExceeded {
				rejected++
			}
		}()
	}
	wg.Wait()

	if allowed != 10 || rejected != workers-10 {
		t.Errorf("allowed = %d, rejected = %d; want 10, %d", allowed, rejected, workers-10)
	}
}
