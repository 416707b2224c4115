package api

import (
	"errors"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/domain"
)

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want connect.Code
	}{
		{"NotFound", domain.NotFound("QUERY-UserNotFound", "user not found"), connect.CodeNotFound},
		{"AlreadyExists", domain.AlreadyExists("ORG-AlreadyExists", "org exists"), connect.CodeAlreadyExists},
		{"ConcurrencyConflict", domain.ConcurrencyConflict("org", "o-1", 3), connect.CodeAlreadyExists},
		{"InvalidArgument", domain.InvalidArgument("JAR-004", "issuer mismatch"), connect.CodeInvalidArgument},
		{"ValidationCode", domain.InvalidArgument("VALIDATION-invalid", "bad email"), connect.CodeInvalidArgument},
		{"WeakPassword", domain.InvalidArgument(domain.CodeWeakPassword, "too guessable"), connect.CodeInvalidArgument},
		{"Unauthenticated", domain.Unauthenticated("OIDC-NoToken", "no token"), connect.CodeUnauthenticated},
		{"TokenExpired", domain.Unauthenticated(domain.CodeTokenExpired, "expired"), connect.CodeUnauthenticated},
		{"TokenInvalid", domain.Unauthenticated(domain.CodeTokenInvalid, "invalid"), connect.CodeUnauthenticated},
		{"SessionExpired", domain.Unauthenticated(domain.CodeSessionExpired, "expired"), connect.CodeUnauthenticated},
		{"InvalidCredentials", domain.Unauthenticated(domain.CodeInvalidCredentials, "wrong"), connect.CodeUnauthenticated},
		{"PermissionDenied", domain.PermissionDenied("AUTHZ-Denied", "denied"), connect.CodePermissionDenied},
		{"Unauthorized", domain.PermissionDenied(domain.CodeUnauthorized, "no grant"), connect.CodePermissionDenied},
		{"UserInactive", domain.PermissionDenied(domain.CodeUserInactive, "inactive"), connect.CodePermissionDenied},
		{"UserLocked", domain.PermissionDenied(domain.CodeUserLocked, "locked"), connect.CodePermissionDenied},
		{"UserSuspended", domain.PermissionDenied(domain.CodeUserSuspended, "suspended"), connect.CodePermissionDenied},
		{"FeatureDisabled", domain.PermissionDenied(domain.CodeFeatureDisabled, "disabled"), connect.CodePermissionDenied},
		{"FailedPrecondition", domain.FailedPrecondition("POLICY-InstanceDefault", "cannot remove"), connect.CodeFailedPrecondition},
		{"Unavailable", domain.Unavailable("CACHE-Closed", "closed"), connect.CodeUnavailable},
		{"DatabaseConnection", domain.Unavailable(domain.CodeUnavailable, "db down"), connect.CodeUnavailable},
		{"DeadlineExceeded", domain.DeadlineExceeded("took too long"), connect.CodeDeadlineExceeded},
		{"QuotaExceeded", domain.ResourceExhausted("quota spent"), connect.CodeResourceExhausted},
		{"Internal", domain.Internal("ES-Push", "push failed"), connect.CodeInternal},
		{"UnknownKind", &domain.Error{Code: "MYSTERY", Message: "???"}, connect.CodeInternal},
		{"NonDomainError", errors.New("plain"), connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Fatalf("StatusCode(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestConnectErrorCarriesDetails(t *testing.T) {
	err := domain.PermissionDenied(domain.CodeUnauthorized, "user is not authorized").
		WithDetail("project_id", "proj-1")
	cerr := ConnectError(err)

	if cerr.Code() != connect.CodePermissionDenied {
		t.Fatalf("code = %v", cerr.Code())
	}
	raw := cerr.Meta().Get(ErrorDetailsKey)
	if raw == "" {
		t.Fatal("error-details metadata missing")
	}
	var body ErrorBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if body.Code != domain.CodeUnauthorized || body.Details["project_id"] != "proj-1" {
		t.Fatalf("body = %+v", body)
	}
}

func TestWriteError(t *testing.T) {
	t.Run("DomainError", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, zerolog.Nop(), domain.NotFound("QUERY-OrgNotFound", "org not found"))
		if rec.Code != 404 {
			t.Fatalf("status = %d", rec.Code)
		}
		var body ErrorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Code != "QUERY-OrgNotFound" {
			t.Fatalf("body = %+v", body)
		}
	})

	t.Run("OpaqueInternal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, zerolog.Nop(), errors.New("sql: driver bad things"))
		if rec.Code != 500 {
			t.Fatalf("status = %d", rec.Code)
		}
		var body ErrorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Code != "INTERNAL" || body.Message != "internal error" {
			t.Fatalf("internal cause leaked: %+v", body)
		}
	})
}
