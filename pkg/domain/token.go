package domain

import "time"

// Aggregate and event types of the token aggregate. Tokens are born live and
// become invalid by expiry or an explicit revocation event.
const (
	TokenAggregateType = "token"

	TokenAddedType     = "token.added"
	TokenRefreshedType = "token.refreshed"
	TokenRevokedType   = "token.revoked"
)

type TokenAddedPayload struct {
	UserID        string     `json:"userId"`
	ApplicationID string     `json:"applicationId,omitempty"`
	TokenType     TokenType  `json:"tokenType"`
	Scopes        []string   `json:"scopes,omitempty"`
	Audiences     []string   `json:"audiences,omitempty"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	IdleExpiresAt *time.Time `json:"idleExpiresAt,omitempty"`
	AuthMethods   []string   `json:"authMethods,omitempty"`
}

type TokenRefreshedPayload struct {
	IdleExpiresAt time.Time `json:"idleExpiresAt"`
}

type TokenRevokedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// Token is the token aggregate covering access, refresh and ID tokens.
// Refresh tokens additionally carry an idle expiry and the authentication
// method references established at issuance.
type Token struct {
	AggregateRoot

	UserID        string
	ApplicationID string
	TokenType     TokenType
	Scopes        []string
	Audiences     []string
	ExpiresAt     time.Time
	IdleExpiresAt *time.Time
	AuthMethods   []string
	Revoked       bool
}

// NewToken returns an empty token aggregate ready to replay events.
func NewToken(id, instanceID, resourceOwner string) *Token {
	t := &Token{AggregateRoot: NewAggregateRoot(TokenAggregateType, id, instanceID, resourceOwner)}
	t.Bind(t.Reduce)
	return t
}

// Reduce folds a single event into token state.
func (t *Token) Reduce(event *Event) error {
	switch event.EventType {
	case TokenAddedType:
		var payload TokenAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		t.UserID = payload.UserID
		t.ApplicationID = payload.ApplicationID
		t.TokenType = payload.TokenType
		t.Scopes = payload.Scopes
		t.Audiences = payload.Audiences
		t.ExpiresAt = payload.ExpiresAt
		t.IdleExpiresAt = payload.IdleExpiresAt
		t.AuthMethods = payload.AuthMethods
	case TokenRefreshedType:
		var payload TokenRefreshedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		t.IdleExpiresAt = &payload.IdleExpiresAt
	case TokenRevokedType:
		t.Revoked = true
	}
	t.Advance(event)
	return nil
}

// Add emits the issuance event.
func (t *Token) Add(eventID, editor string, payload TokenAddedPayload) error {
	if t.Sequence() > 0 {
		return AlreadyExists("TOKEN-AlreadyExists", "token already exists")
	}
	if payload.UserID == "" {
		return InvalidArgument("TOKEN-UserEmpty", "user id must not be empty")
	}
	if payload.ExpiresAt.IsZero() {
		return InvalidArgument("TOKEN-ExpiryMissing", "expiry must be set")
	}
	return t.Emit(TokenAddedType, eventID, editor, payload)
}

// Refresh bumps the idle expiry of a refresh token. Only live refresh
// tokens can be refreshed.
func (t *Token) Refresh(eventID, editor string, now time.Time, idleLifetime time.Duration) error {
	if t.TokenType != TokenTypeRefresh {
		return FailedPrecondition("TOKEN-NotRefresh", "only refresh tokens can be refreshed")
	}
	if err := t.CheckValid(now); err != nil {
		return err
	}
	idle := now.Add(idleLifetime)
	return t.Emit(TokenRefreshedType, eventID, editor, TokenRefreshedPayload{IdleExpiresAt: idle})
}

// Revoke invalidates the token. Revoking a revoked token is a no-op.
func (t *Token) Revoke(eventID, editor, reason string) error {
	if t.Sequence() == 0 {
		return NotFound("TOKEN-NotFound", "token does not exist")
	}
	if t.Revoked {
		return nil // idempotent
	}
	return t.Emit(TokenRevokedType, eventID, editor, TokenRevokedPayload{Reason: reason})
}

// IsExpired reports whether the token is past its absolute expiry, or, for
// refresh tokens, past its idle expiry.
func (t *Token) IsExpired(now time.Time) bool {
	if t.ExpiresAt.Before(now) {
		return true
	}
	if t.TokenType == TokenTypeRefresh && t.IdleExpiresAt != nil && t.IdleExpiresAt.Before(now) {
		return true
	}
	return false
}

// CheckValid rejects expired or revoked tokens with the matching
// authentication error.
func (t *Token) CheckValid(now time.Time) error {
	if t.Revoked {
		return Unauthenticated(CodeTokenInvalid, "token revoked")
	}
	if t.IsExpired(now) {
		return Unauthenticated(CodeTokenExpired, "token expired")
	}
	return nil
}
