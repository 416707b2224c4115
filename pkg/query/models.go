package query

import (
	"time"

	"github.com/identra/identra/pkg/domain"
)

// ObjectDetails is the bookkeeping every read model row carries.
type ObjectDetails struct {
	Sequence      int64     `json:"sequence,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	ChangedAt     time.Time `json:"changedAt"`
	ResourceOwner string    `json:"resourceOwner,omitempty"`
}

// Org is the organization read model.
type Org struct {
	ID            string          `json:"id"`
	InstanceID    string          `json:"instanceId"`
	Name          string          `json:"name"`
	PrimaryDomain string          `json:"primaryDomain,omitempty"`
	State         domain.OrgState `json:"state"`
	Details       ObjectDetails   `json:"details"`
}

// OrgDomain is one domain row of an org.
type OrgDomain struct {
	OrgID          string                      `json:"orgId"`
	Domain         string                      `json:"domain"`
	IsVerified     bool                        `json:"isVerified"`
	IsPrimary      bool                        `json:"isPrimary"`
	ValidationType domain.DomainValidationType `json:"validationType"`
	Details        ObjectDetails               `json:"details"`
}

// OrgWithDomains bundles an org with all of its domains.
type OrgWithDomains struct {
	Org     *Org         `json:"org"`
	Domains []*OrgDomain `json:"domains"`
}

// User is the user read model. Password material never appears here.
type User struct {
	ID            string           `json:"id"`
	InstanceID    string           `json:"instanceId"`
	Username      string           `json:"username"`
	Type          domain.UserType  `json:"type"`
	State         domain.UserState `json:"state"`
	Email         string           `json:"email,omitempty"`
	EmailVerified bool             `json:"emailVerified"`
	Phone         string           `json:"phone,omitempty"`
	PhoneVerified bool             `json:"phoneVerified"`
	FirstName     string           `json:"firstName,omitempty"`
	LastName      string           `json:"lastName,omitempty"`
	Details       ObjectDetails    `json:"details"`
}

// Session is the session read model.
type Session struct {
	ID          string              `json:"id"`
	InstanceID  string              `json:"instanceId"`
	UserID      string              `json:"userId"`
	State       domain.SessionState `json:"state"`
	AuthMethods []string            `json:"authMethods"`
	ExpiresAt   *time.Time          `json:"expiresAt,omitempty"`
	Details     ObjectDetails       `json:"details"`
}

// IsActive reports session usability at the given time. Expired active
// sessions read as terminated without being rewritten.
func (s *Session) IsActive(now time.Time) bool {
	if s.State != domain.SessionStateActive {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// Token is the token read model.
type Token struct {
	ID            string           `json:"id"`
	InstanceID    string           `json:"instanceId"`
	UserID        string           `json:"userId"`
	ApplicationID string           `json:"applicationId,omitempty"`
	Type          domain.TokenType `json:"type"`
	Scopes        []string         `json:"scopes"`
	Audiences     []string         `json:"audiences"`
	AuthMethods   []string         `json:"authMethods"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	IdleExpiresAt *time.Time       `json:"idleExpiresAt,omitempty"`
	Revoked       bool             `json:"revoked"`
	Details       ObjectDetails    `json:"details"`
}

// IsExpired reports whether the token is past absolute expiry, or, for
// refresh tokens, past idle expiry.
func (t *Token) IsExpired(now time.Time) bool {
	if t.ExpiresAt.Before(now) {
		return true
	}
	if t.Type == domain.TokenTypeRefresh && t.IdleExpiresAt != nil && t.IdleExpiresAt.Before(now) {
		return true
	}
	return false
}

// UserGrant is the user grant read model.
type UserGrant struct {
	ID             string            `json:"id"`
	InstanceID     string            `json:"instanceId"`
	UserID         string            `json:"userId"`
	ProjectID      string            `json:"projectId"`
	ProjectGrantID string            `json:"projectGrantId,omitempty"`
	RoleKeys       []string          `json:"roleKeys"`
	State          domain.GrantState `json:"state"`
	Details        ObjectDetails     `json:"details"`
}

// GrantCheck is the result of checkUserGrant.
type GrantCheck struct {
	Exists  bool       `json:"exists"`
	Grant   *UserGrant `json:"grant,omitempty"`
	HasRole bool       `json:"hasRole"`
	Roles   []string   `json:"roles"`
}

// LoginPolicy is the resolved login policy with its source level.
type LoginPolicy struct {
	domain.LoginPolicyDocument

	OwnerID     string `json:"ownerId"`
	IsDefault   bool   `json:"isDefault"`   // true when the instance default won
	IsOrgPolicy bool   `json:"isOrgPolicy"` // true when an org override won
	InstanceID  string `json:"instanceId"`
}

// PasswordComplexityPolicy is the resolved complexity policy with its
// source level.
type PasswordComplexityPolicy struct {
	domain.PasswordComplexityDocument

	OwnerID   string `json:"ownerId,omitempty"`
	IsDefault bool   `json:"isDefault"`
	IsBuiltIn bool   `json:"isBuiltIn"`
}

// PasswordValidation is the outcome of validatePassword: one entry per
// failed rule.
type PasswordValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Application is the OAuth client read model.
type Application struct {
	AppID        string        `json:"appId"`
	ProjectID    string        `json:"projectId"`
	InstanceID   string        `json:"instanceId"`
	Name         string        `json:"name"`
	ClientID     string        `json:"clientId"`
	RedirectURIs []string      `json:"redirectUris"`
	Details      ObjectDetails `json:"details"`
}
