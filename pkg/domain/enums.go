package domain

import "github.com/goccy/go-json"

// Enums carry a single canonical integer representation. String forms exist
// only at the wire boundary via the explicit (de)serializers below.

type OrgState int32

const (
	OrgStateUnspecified OrgState = iota
	OrgStateActive
	OrgStateInactive
)

var orgStateNames = map[OrgState]string{
	OrgStateUnspecified: "ORG_STATE_UNSPECIFIED",
	OrgStateActive:      "ORG_STATE_ACTIVE",
	OrgStateInactive:    "ORG_STATE_INACTIVE",
}

func (s OrgState) String() string { return enumName(orgStateNames, s, "ORG_STATE_UNSPECIFIED") }

type UserState int32

const (
	UserStateUnspecified UserState = iota
	UserStateActive
	UserStateInactive
	UserStateDeleted
	UserStateLocked
	UserStateSuspended
	UserStateInitial
)

var userStateNames = map[UserState]string{
	UserStateUnspecified: "USER_STATE_UNSPECIFIED",
	UserStateActive:      "USER_STATE_ACTIVE",
	UserStateInactive:    "USER_STATE_INACTIVE",
	UserStateDeleted:     "USER_STATE_DELETED",
	UserStateLocked:      "USER_STATE_LOCKED",
	UserStateSuspended:   "USER_STATE_SUSPENDED",
	UserStateInitial:     "USER_STATE_INITIAL",
}

func (s UserState) String() string { return enumName(userStateNames, s, "USER_STATE_UNSPECIFIED") }

// Exists reports whether the user row should still be considered present.
func (s UserState) Exists() bool {
	return s != UserStateUnspecified && s != UserStateDeleted
}

type UserType int32

const (
	UserTypeUnspecified UserType = iota
	UserTypeHuman
	UserTypeMachine
)

var userTypeNames = map[UserType]string{
	UserTypeUnspecified: "USER_TYPE_UNSPECIFIED",
	UserTypeHuman:       "USER_TYPE_HUMAN",
	UserTypeMachine:     "USER_TYPE_MACHINE",
}

func (t UserType) String() string { return enumName(userTypeNames, t, "USER_TYPE_UNSPECIFIED") }

type SessionState int32

const (
	SessionStateUnspecified SessionState = iota
	SessionStateActive
	SessionStateTerminated
)

var sessionStateNames = map[SessionState]string{
	SessionStateUnspecified: "SESSION_STATE_UNSPECIFIED",
	SessionStateActive:      "SESSION_STATE_ACTIVE",
	SessionStateTerminated:  "SESSION_STATE_TERMINATED",
}

func (s SessionState) String() string {
	return enumName(sessionStateNames, s, "SESSION_STATE_UNSPECIFIED")
}

type TokenType int32

const (
	TokenTypeUnspecified TokenType = iota
	TokenTypeAccess
	TokenTypeRefresh
	TokenTypeID
)

var tokenTypeNames = map[TokenType]string{
	TokenTypeUnspecified: "TOKEN_TYPE_UNSPECIFIED",
	TokenTypeAccess:      "TOKEN_TYPE_ACCESS",
	TokenTypeRefresh:     "TOKEN_TYPE_REFRESH",
	TokenTypeID:          "TOKEN_TYPE_ID",
}

func (t TokenType) String() string { return enumName(tokenTypeNames, t, "TOKEN_TYPE_UNSPECIFIED") }

type GrantState int32

const (
	GrantStateUnspecified GrantState = iota
	GrantStateActive
	GrantStateInactive
	GrantStateRemoved
)

var grantStateNames = map[GrantState]string{
	GrantStateUnspecified: "GRANT_STATE_UNSPECIFIED",
	GrantStateActive:      "GRANT_STATE_ACTIVE",
	GrantStateInactive:    "GRANT_STATE_INACTIVE",
	GrantStateRemoved:     "GRANT_STATE_REMOVED",
}

func (s GrantState) String() string { return enumName(grantStateNames, s, "GRANT_STATE_UNSPECIFIED") }

// DomainValidationType is how an org domain ownership claim is verified.
type DomainValidationType int32

const (
	DomainValidationTypeUnspecified DomainValidationType = iota
	DomainValidationTypeHTTP
	DomainValidationTypeDNS
)

var domainValidationNames = map[DomainValidationType]string{
	DomainValidationTypeUnspecified: "DOMAIN_VALIDATION_TYPE_UNSPECIFIED",
	DomainValidationTypeHTTP:        "DOMAIN_VALIDATION_TYPE_HTTP",
	DomainValidationTypeDNS:         "DOMAIN_VALIDATION_TYPE_DNS",
}

func (t DomainValidationType) String() string {
	return enumName(domainValidationNames, t, "DOMAIN_VALIDATION_TYPE_UNSPECIFIED")
}

// SecondFactorType enumerates permitted second factors of a login policy.
type SecondFactorType int32

const (
	SecondFactorTypeUnspecified SecondFactorType = iota
	SecondFactorTypeTOTP
	SecondFactorTypeU2F
	SecondFactorTypeOTPEmail
	SecondFactorTypeOTPSMS
)

// MultiFactorType enumerates permitted multi factors of a login policy.
type MultiFactorType int32

const (
	MultiFactorTypeUnspecified MultiFactorType = iota
	MultiFactorTypeU2FWithVerification
)

func enumName[E ~int32](names map[E]string, v E, fallback string) string {
	if name, ok := names[v]; ok {
		return name
	}
	return fallback
}

// enumJSON wraps the integer canonical form for wire serialization of any enum.
func enumJSON[E ~int32](v E) ([]byte, error) { return json.Marshal(int32(v)) }

// MarshalJSON emits the canonical integer form.
func (s OrgState) MarshalJSON() ([]byte, error)     { return enumJSON(s) }
func (s UserState) MarshalJSON() ([]byte, error)    { return enumJSON(s) }
func (t UserType) MarshalJSON() ([]byte, error)     { return enumJSON(t) }
func (s SessionState) MarshalJSON() ([]byte, error) { return enumJSON(s) }
func (t TokenType) MarshalJSON() ([]byte, error)    { return enumJSON(t) }
func (s GrantState) MarshalJSON() ([]byte, error)   { return enumJSON(s) }
