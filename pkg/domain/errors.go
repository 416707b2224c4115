package domain

import (
	"errors"
	"fmt"
)

// Kind is the error category. It mirrors the RPC status families so that
// the transport middleware can map uncategorized codes by kind alone.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidArgument
	KindUnauthenticated
	KindPermissionDenied
	KindFailedPrecondition
	KindUnavailable
	KindDeadlineExceeded
	KindResourceExhausted
	KindInternal
)

// Well-known domain codes. Codes are stable and preserved end-to-end;
// the transport layer maps them to RPC status (see pkg/api).
const (
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeUnavailable         = "DATABASE_CONNECTION_FAILED"
	CodeDeadlineExceeded    = "DEADLINE_EXCEEDED"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeWeakPassword        = "WEAK_PASSWORD"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeUserInactive        = "USER_INACTIVE"
	CodeUserLocked          = "USER_LOCKED"
	CodeUserSuspended       = "USER_SUSPENDED"
	CodeFeatureDisabled     = "FEATURE_DISABLED"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	// ErrConcurrencyConflict is returned on an optimistic concurrency
	// mismatch. Writers retry after reloading the aggregate.
	ErrConcurrencyConflict = errors.New("concurrency conflict: aggregate sequence mismatch")

	// ErrAggregateNotFound is returned when an aggregate has no events.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrUniqueConstraintViolation is returned when a uniqueness claim
	// would be violated.
	ErrUniqueConstraintViolation = errors.New("unique constraint violation")
)

// Error is the domain error carried end-to-end. Code is stable; Details are
// surfaced on the wire inside the error-details metadata entry.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]string
	parent  error
}

func (e *Error) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("%s (code: %s): %v", e.Message, e.Code, e.parent)
	}
	return fmt.Sprintf("%s (code: %s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.parent }

// Is matches the taxonomy sentinels and other domain errors by code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConcurrencyConflict:
		return e.Code == CodeConcurrencyConflict
	case ErrAggregateNotFound:
		return e.Kind == KindNotFound
	case ErrUniqueConstraintViolation:
		return e.Kind == KindAlreadyExists && e.Code != CodeConcurrencyConflict
	}
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// WithParent attaches a cause while preserving code and kind.
func (e *Error) WithParent(err error) *Error {
	e.parent = err
	return e
}

// WithDetail adds a single wire-visible detail.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func NotFound(code, message string) *Error      { return newError(KindNotFound, code, message) }
func AlreadyExists(code, message string) *Error { return newError(KindAlreadyExists, code, message) }
func InvalidArgument(code, message string) *Error {
	return newError(KindInvalidArgument, code, message)
}
func Unauthenticated(code, message string) *Error {
	return newError(KindUnauthenticated, code, message)
}
func PermissionDenied(code, message string) *Error {
	return newError(KindPermissionDenied, code, message)
}
func FailedPrecondition(code, message string) *Error {
	return newError(KindFailedPrecondition, code, message)
}
func Unavailable(code, message string) *Error { return newError(KindUnavailable, code, message) }
func DeadlineExceeded(message string) *Error {
	return newError(KindDeadlineExceeded, CodeDeadlineExceeded, message)
}
func ResourceExhausted(message string) *Error {
	return newError(KindResourceExhausted, CodeQuotaExceeded, message)
}
func Internal(code, message string) *Error { return newError(KindInternal, code, message) }

// ConcurrencyConflict reports an optimistic locking failure. Retriable
// after reloading the aggregate; never recovered locally by the store.
func ConcurrencyConflict(aggregateType, aggregateID string, expected int64) *Error {
	return newError(KindAlreadyExists, CodeConcurrencyConflict,
		fmt.Sprintf("expected sequence %d for %s %s", expected, aggregateType, aggregateID))
}

// UniqueConstraintError reports a uniqueness violation with its claim.
type UniqueConstraintError struct {
	IndexName string
	Value     string
	OwnerID   string
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf("unique constraint violation: %s=%q is already claimed by aggregate %s",
		e.IndexName, e.Value, e.OwnerID)
}

func (e *UniqueConstraintError) Is(target error) bool {
	return target == ErrUniqueConstraintViolation
}

// CodeOf extracts the stable domain code from any error.
// Non-domain errors report an empty code.
func CodeOf(err error) string {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	return ""
}

// KindOf extracts the error kind; unknown for non-domain errors.
func KindOf(err error) Kind {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return KindUnknown
}
