// Package authz decides whether an authenticated caller may act:
// session usability, user state, grant checks, and the login policy's
// MFA requirement.
package authz

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/policy"
	"github.com/identra/identra/pkg/query"
)

// Auth method references recorded on sessions.
const (
	MethodPassword = "password"
	MethodIDP      = "idp"
	MethodPasskey  = "passkey"
	MethodTOTP     = "totp"
	MethodU2F      = "u2f"
	MethodOTPEmail = "otp_email"
	MethodOTPSMS   = "otp_sms"
)

// mfaMethods satisfy a force-MFA requirement. Passkeys count: they are
// multi-factor by construction.
var mfaMethods = map[string]bool{
	MethodPasskey:  true,
	MethodTOTP:     true,
	MethodU2F:      true,
	MethodOTPEmail: true,
	MethodOTPSMS:   true,
}

// Checker runs authorization decisions against the read layer and the
// resolved policies. All checks are instance-scoped.
type Checker struct {
	queries  *query.Queries
	policies *policy.Resolver
	logger   zerolog.Logger

	now func() time.Time
}

// NewChecker creates a checker over the given read layer and resolver.
func NewChecker(queries *query.Queries, policies *policy.Resolver, logger zerolog.Logger) *Checker {
	return &Checker{
		queries:  queries,
		policies: policies,
		logger:   logger.With().Str("component", "authz").Logger(),
		now:      time.Now,
	}
}

// AccessRequest names everything Authorize needs to decide.
type AccessRequest struct {
	InstanceID string
	SessionID  string
	UserID     string
	ProjectID  string
	Role       string
}

// Authorize runs the full chain: session usability, user state, MFA
// requirement, then the grant check. The first failing check decides.
func (c *Checker) Authorize(ctx context.Context, req AccessRequest) (*query.GrantCheck, error) {
	session, err := c.CheckSession(ctx, req.InstanceID, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := c.CheckUser(ctx, req.InstanceID, session.UserID); err != nil {
		return nil, err
	}
	if err := c.CheckMFA(ctx, session); err != nil {
		return nil, err
	}
	return c.CheckGrant(ctx, req.InstanceID, session.UserID, req.ProjectID, req.Role)
}

// CheckGrant authorizes an action on a project: the user must hold an
// active grant, and the grant must carry the role when one is named.
func (c *Checker) CheckGrant(ctx context.Context, instanceID, userID, projectID, role string) (*query.GrantCheck, error) {
	check, err := c.queries.CheckUserGrant(ctx, instanceID, userID, projectID, role)
	if err != nil {
		return nil, err
	}
	if !check.Exists || !check.HasRole {
		c.logger.Debug().
			Str("instance_id", instanceID).
			Str("user_id", userID).
			Str("project_id", projectID).
			Str("role", role).
			Bool("exists", check.Exists).
			Msg("grant check denied")
		err := domain.PermissionDenied(domain.CodeUnauthorized, "user is not authorized for this project").
			WithDetail("project_id", projectID)
		if role != "" {
			err = err.WithDetail("role", role)
		}
		return nil, err
	}
	return check, nil
}

// CheckUser rejects callers whose user is not in a usable state.
func (c *Checker) CheckUser(ctx context.Context, instanceID, userID string) (*query.User, error) {
	user, err := c.queries.GetUserByID(ctx, instanceID, userID)
	if err != nil {
		return nil, err
	}
	switch user.State {
	case domain.UserStateActive:
		return user, nil
	case domain.UserStateLocked:
		return nil, domain.PermissionDenied(domain.CodeUserLocked, "user is locked")
	case domain.UserStateSuspended:
		return nil, domain.PermissionDenied(domain.CodeUserSuspended, "user is suspended")
	default:
		return nil, domain.PermissionDenied(domain.CodeUserInactive, "user is not active")
	}
}

// CheckSession loads the session and requires it to be usable now. When
// userID is given the session must belong to that user; a mismatch reads
// the same as an expired session so ownership is not leaked.
func (c *Checker) CheckSession(ctx context.Context, instanceID, sessionID, userID string) (*query.Session, error) {
	session, err := c.queries.GetSessionByID(ctx, instanceID, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && session.UserID != userID {
		return nil, domain.Unauthenticated(domain.CodeSessionExpired, "session is not usable")
	}
	if !session.IsActive(c.now()) {
		return nil, domain.Unauthenticated(domain.CodeSessionExpired, "session is not usable")
	}
	return session, nil
}

// CheckMFA enforces the resolved login policy's force-MFA requirement
// against the session's auth method references. The local-only variant
// exempts sessions authenticated through an external IdP.
func (c *Checker) CheckMFA(ctx context.Context, session *query.Session) error {
	loginPolicy, err := c.policies.LoginPolicy(ctx, session.InstanceID, session.Details.ResourceOwner)
	if err != nil {
		return err
	}
	if loginPolicy == nil {
		return nil
	}

	required := loginPolicy.ForceMFA
	if !required && loginPolicy.ForceMFALocalOnly && !hasMethod(session.AuthMethods, MethodIDP) {
		required = true
	}
	if !required {
		return nil
	}

	for _, method := range session.AuthMethods {
		if mfaMethods[method] {
			return nil
		}
	}
	return domain.Unauthenticated("AUTHZ-MFARequired", "multi-factor authentication required").
		WithDetail("session_id", session.ID)
}

// RequireFeature gates an operation on an instance feature flag.
func (c *Checker) RequireFeature(ctx context.Context, instanceID, name string) error {
	enabled, err := c.queries.IsInstanceFeatureEnabled(ctx, instanceID, name)
	if err != nil {
		return err
	}
	if !enabled {
		return domain.PermissionDenied(domain.CodeFeatureDisabled, "feature is not enabled").
			WithDetail("feature", name)
	}
	return nil
}

func hasMethod(methods []string, want string) bool {
	for _, method := range methods {
		if method == want {
			return true
		}
	}
	return false
}
