package weather

import (
	"fmt"
	"time"
)

// UpstreamCode classifies an upstream provider failure. Codes are assigned
// at the provider boundary from HTTP status or transport errors; nothing
// above the boundary looks at raw status codes.
type UpstreamCode string

const (
	UpstreamNotFound     UpstreamCode = "not_found"
	UpstreamUnauthorized UpstreamCode = "unauthorized"
	UpstreamQuota        UpstreamCode = "quota_exceeded"
	UpstreamRateLimited  UpstreamCode = "rate_limited"
	UpstreamServerError  UpstreamCode = "server_error"
	UpstreamNetworkError UpstreamCode = "network_error"
)

// UpstreamError is a typed provider failure. Retryable drives the retry
// policy.
type UpstreamError struct {
	Provider  string
	Code      UpstreamCode
	Status    int
	Retryable bool
	Err       error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Code, e.Status)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Code)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ErrorCode identifies a caller-facing failure class.
type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeLocationNotSpecified ErrorCode = "LOCATION_NOT_SPECIFIED"
	CodeLocationNotFound     ErrorCode = "LOCATION_NOT_FOUND"
	CodeNoSuitableAPI        ErrorCode = "NO_SUITABLE_API"
	CodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUpstream             ErrorCode = "UPSTREAM_ERROR"
)

// QueryError is the typed error surfaced to callers. Every instance carries
// at least one plain-language suggestion.
type QueryError struct {
	Code        ErrorCode     `json:"code"`
	Message     string        `json:"message"`
	Suggestions []string      `json:"suggestions,omitempty"`
	RetryAfter  time.Duration `json:"-"`
	Details     string        `json:"details,omitempty"`
	err         error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.err
}

func newQueryError(code ErrorCode, message string, cause error, suggestions ...string) *QueryError {
	qe := &QueryError{
		Code:        code,
		Message:     message,
		Suggestions: suggestions,
		err:         cause,
	}
	if cause != nil {
		qe.Details = cause.Error()
	}
	return qe
}
