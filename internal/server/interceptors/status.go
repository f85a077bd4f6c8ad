package interceptors

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"tenant-authz/internal/authz/domain"
)

var reasonCodes = map[domain.Reason]codes.Code{
	domain.ReasonInvalidCredential: codes.Unauthenticated,
	domain.ReasonExpiredCredential: codes.Unauthenticated,
	domain.ReasonNoOrgContext:      codes.PermissionDenied,
	domain.ReasonAccessDenied:      codes.PermissionDenied,
	domain.ReasonRateExceeded:      codes.ResourceExhausted,
	domain.ReasonStoreUnavailable:  codes.Unavailable,
}

// CodeFor returns the gRPC code for a rejection reason.
func CodeFor(reason domain.Reason) codes.Code {
	if c, ok := reasonCodes[reason]; ok {
		return c
	}
	return codes.Internal
}

// RejectionStatus converts a pipeline error into a gRPC status error. The message is the reason's
// fixed client message; the underlying cause is never included. Rate-limit rejections carry
// RetryInfo and QuotaFailure details; the retry delay is max(1s, reset - now), as Retry-After on HTTP.
func RejectionStatus(err error, now time.Time) error {
	var rej *domain.Rejection
	if !errors.As(err, &rej) {
		return status.Error(codes.Internal, "internal error")
	}
	st := status.New(CodeFor(rej.Reason), rej.Reason.Message())
	if rej.Reason != domain.ReasonRateExceeded {
		return st.Err()
	}
	retry := rej.ResetEpoch - now.Unix()
	if retry < 1 {
		retry = 1
	}
	delay := time.Duration(retry) * time.Second
	detailed, derr := st.WithDetails(
		&errdetails.RetryInfo{RetryDelay: durationpb.New(delay)},
		&errdetails.QuotaFailure{Violations: []*errdetails.QuotaFailure_Violation{{
			Subject:     "requests",
			Description: fmt.Sprintf("limit %d, remaining %d, resets at %d", rej.Limit, rej.Remaining, rej.ResetEpoch),
		}}},
	)
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}
