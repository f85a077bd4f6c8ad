package domain

import (
	"errors"
	"fmt"
)

// Reason tags why a request was rejected. Boundaries map each reason to a stable status code.
type Reason string

const (
	ReasonInvalidCredential Reason = "invalid_credential"
	ReasonExpiredCredential Reason = "expired_credential"
	ReasonNoOrgContext      Reason = "no_org_context"
	ReasonAccessDenied      Reason = "access_denied"
	ReasonRateExceeded      Reason = "rate_exceeded"
	ReasonStoreUnavailable  Reason = "store_unavailable"
)

var messages = map[Reason]string{
	ReasonInvalidCredential: "missing or invalid authorization",
	ReasonExpiredCredential: "token expired",
	ReasonNoOrgContext:      "organization context required",
	ReasonAccessDenied:      "access denied to this organization",
	ReasonRateExceeded:      "rate limit exceeded",
	ReasonStoreUnavailable:  "service temporarily unavailable",
}

// Message returns the client-facing message for r. It never includes internal error text.
func (r Reason) Message() string {
	if m, ok := messages[r]; ok {
		return m
	}
	return "request rejected"
}

var (
	// ErrStoreUnavailable marks a backing-store failure (timeout, connection refused, ...).
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Rejection is the terminal error of a pipeline invocation.
// Remaining, Limit and ResetEpoch are only populated for ReasonRateExceeded.
type Rejection struct {
	Reason     Reason
	Limit      int64
	Remaining  int64
	ResetEpoch int64
	// Err is the underlying cause; logged, never shown to clients.
	Err error
}

// Reject returns a Rejection for reason wrapping cause (which may be nil).
func Reject(reason Reason, cause error) *Rejection {
	return &Rejection{Reason: reason, Err: cause}
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("authz: %s: %v", r.Reason, r.Err)
	}
	return "authz: " + string(r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Err }

// ReasonOf extracts the rejection reason from err.
func ReasonOf(err error) (Reason, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
