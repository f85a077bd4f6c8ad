package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tenant-authz/internal/audit/domain"
	auditrepo "tenant-authz/internal/audit/repository"
	"tenant-authz/internal/authz"
	authzdomain "tenant-authz/internal/authz/domain"
)

// SentinelOrgID is the org_id used for audit events that have no org (e.g. a missing or invalid token).
const SentinelOrgID = "_system"

const writeTimeout = 2 * time.Second

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, userID, ip, action, resource, metadata string)
}

// Logger implements AuditLogger and authz.RejectionAuditor over the audit repository.
type Logger struct {
	repo   auditrepo.Repository
	logger logrus.FieldLogger
	clock  clock.Clock
}

// NewLogger returns a Logger that persists to repo. logger may be nil.
func NewLogger(repo auditrepo.Repository, logger logrus.FieldLogger, clk clock.Clock) *Logger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Logger{repo: repo, logger: logger, clock: clk}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
// The write survives cancellation of ctx but is bounded by a short timeout.
func (l *Logger) LogEvent(ctx context.Context, orgID, userID, ip, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	if ip == "" {
		ip = "unknown"
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.clock.Now().UTC(),
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := l.repo.Create(writeCtx, entry); err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{"action": action, "resource": resource}).Warn("audit: failed to log event")
	}
}

type rejectionMetadata struct {
	Reason         string `json:"reason"`
	Route          string `json:"route"`
	RequestedOrgID string `json:"requested_org_id,omitempty"`
}

// LogRejection records a rejected request under ActionAuthzRejected.
// Rejected callers never write into an org's trail: the entry goes to SentinelOrgID and the
// requested org is kept in the metadata. Rate-limit rejections of confirmed members are the exception.
func (l *Logger) LogRejection(ctx context.Context, req authz.Request, subjectID, orgID string, reason authzdomain.Reason) {
	meta, _ := json.Marshal(rejectionMetadata{Reason: string(reason), Route: req.Route, RequestedOrgID: orgID})
	target := SentinelOrgID
	if reason == authzdomain.ReasonRateExceeded && subjectID != "" {
		target = orgID
	}
	l.LogEvent(ctx, target, subjectID, req.ClientIP, domain.ActionAuthzRejected, ParseRoute(req.Route).Resource, string(meta))
}
