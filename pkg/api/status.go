// Package api is the HTTP surface of the service: routing, tenant
// resolution, and the translation of domain errors into wire status.
package api

import (
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/domain"
)

// ErrorDetailsKey is the metadata entry carrying the structured error.
const ErrorDetailsKey = "error-details"

// ErrorBody is the wire form of a failure: the stable domain code, a
// human-readable message, and optional details.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// codeStatus maps the well-known domain codes to their RPC status. Codes
// not listed fall back to their error kind; anything still unrecognized
// is INTERNAL.
var codeStatus = map[string]connect.Code{
	domain.CodeConcurrencyConflict: connect.CodeAlreadyExists,
	domain.CodeWeakPassword:        connect.CodeInvalidArgument,
	domain.CodeTokenExpired:        connect.CodeUnauthenticated,
	domain.CodeTokenInvalid:        connect.CodeUnauthenticated,
	domain.CodeSessionExpired:      connect.CodeUnauthenticated,
	domain.CodeInvalidCredentials:  connect.CodeUnauthenticated,
	domain.CodeUnauthorized:        connect.CodePermissionDenied,
	domain.CodeUserInactive:        connect.CodePermissionDenied,
	domain.CodeUserLocked:          connect.CodePermissionDenied,
	domain.CodeUserSuspended:       connect.CodePermissionDenied,
	domain.CodeFeatureDisabled:     connect.CodePermissionDenied,
	domain.CodeUnavailable:         connect.CodeUnavailable,
	domain.CodeDeadlineExceeded:    connect.CodeDeadlineExceeded,
	domain.CodeQuotaExceeded:       connect.CodeResourceExhausted,
}

var kindStatus = map[domain.Kind]connect.Code{
	domain.KindNotFound:           connect.CodeNotFound,
	domain.KindAlreadyExists:      connect.CodeAlreadyExists,
	domain.KindInvalidArgument:    connect.CodeInvalidArgument,
	domain.KindUnauthenticated:    connect.CodeUnauthenticated,
	domain.KindPermissionDenied:   connect.CodePermissionDenied,
	domain.KindFailedPrecondition: connect.CodeFailedPrecondition,
	domain.KindUnavailable:        connect.CodeUnavailable,
	domain.KindDeadlineExceeded:   connect.CodeDeadlineExceeded,
	domain.KindResourceExhausted:  connect.CodeResourceExhausted,
}

// StatusCode translates any error into its RPC status. Non-domain errors
// and unrecognized codes map to INTERNAL.
func StatusCode(err error) connect.Code {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return connect.CodeInternal
	}
	if code, ok := codeStatus[derr.Code]; ok {
		return code
	}
	if code, ok := kindStatus[derr.Kind]; ok {
		return code
	}
	return connect.CodeInternal
}

// HTTPStatus gives the REST-side status for an RPC code, following the
// Connect unary protocol's mapping.
func HTTPStatus(code connect.Code) int {
	switch code {
	case connect.CodeInvalidArgument:
		return http.StatusBadRequest
	case connect.CodeUnauthenticated:
		return http.StatusUnauthorized
	case connect.CodePermissionDenied:
		return http.StatusForbidden
	case connect.CodeNotFound:
		return http.StatusNotFound
	case connect.CodeAlreadyExists:
		return http.StatusConflict
	case connect.CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case connect.CodeResourceExhausted:
		return http.StatusTooManyRequests
	case connect.CodeUnavailable:
		return http.StatusServiceUnavailable
	case connect.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func bodyOf(err error) ErrorBody {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return ErrorBody{Code: derr.Code, Message: derr.Message, Details: derr.Details}
	}
	return ErrorBody{Code: "INTERNAL", Message: "internal error"}
}

// ConnectError wraps an error as a *connect.Error carrying the structured
// body in the error-details metadata entry.
func ConnectError(err error) *connect.Error {
	cerr := connect.NewError(StatusCode(err), err)
	if payload, merr := json.Marshal(bodyOf(err)); merr == nil {
		cerr.Meta().Set(ErrorDetailsKey, string(payload))
	}
	return cerr
}

// WriteError renders an error as the JSON error body with the mapped
// HTTP status. Internal failures are logged with their cause; the wire
// never carries it.
func WriteError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	code := StatusCode(err)
	if code == connect.CodeInternal {
		logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, HTTPStatus(code), bodyOf(err))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
