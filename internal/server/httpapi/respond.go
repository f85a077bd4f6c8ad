package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tenant-authz/internal/authz/domain"
	"tenant-authz/internal/ratelimit"
)

var reasonStatus = map[domain.Reason]int{
	domain.ReasonInvalidCredential: http.StatusUnauthorized,
	domain.ReasonExpiredCredential: http.StatusUnauthorized,
	domain.ReasonNoOrgContext:      http.StatusForbidden,
	domain.ReasonAccessDenied:      http.StatusForbidden,
	domain.ReasonRateExceeded:      http.StatusTooManyRequests,
	domain.ReasonStoreUnavailable:  http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status for a rejection reason.
func StatusFor(reason domain.Reason) int {
	if c, ok := reasonStatus[reason]; ok {
		return c
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Status: status})
}

// writeStatusError writes an error from the rbac guards, which use gRPC status codes.
func writeStatusError(w http.ResponseWriter, err error) {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		writeError(w, http.StatusUnauthorized, st.Message())
	case codes.PermissionDenied:
		writeError(w, http.StatusForbidden, st.Message())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeRejection writes err as a JSON error. Only the reason's fixed message reaches the client.
func writeRejection(w http.ResponseWriter, err error, now time.Time) {
	var rej *domain.Rejection
	if !errors.As(err, &rej) {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rej.Reason == domain.ReasonRateExceeded {
		setRateHeaders(w, rej.Limit, rej.Remaining, rej.ResetEpoch)
		retry := rej.ResetEpoch - now.Unix()
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	}
	writeError(w, StatusFor(rej.Reason), rej.Reason.Message())
}

func setRateHeaders(w http.ResponseWriter, limit, remaining, reset int64) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
}

func setQuotaHeaders(w http.ResponseWriter, res ratelimit.Result) {
	if res.Limit > 0 {
		setRateHeaders(w, res.Limit, res.Remaining, res.ResetEpoch)
	}
}
