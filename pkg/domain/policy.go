package domain

import "time"

// Aggregate and event types of the policy aggregate. One policy aggregate
// exists per owner: an org id for org-level policies, the instance id for
// instance defaults. The winning level always supplies the whole policy.
const (
	PolicyAggregateType = "policy"

	LoginPolicyAddedType   = "policy.login.added"
	LoginPolicyChangedType = "policy.login.changed"
	LoginPolicyRemovedType = "policy.login.removed"

	PasswordComplexityPolicyAddedType   = "policy.password.complexity.added"
	PasswordComplexityPolicyChangedType = "policy.password.complexity.changed"
	PasswordComplexityPolicyRemovedType = "policy.password.complexity.removed"
)

// LoginPolicyDocument is the full login policy at one level.
type LoginPolicyDocument struct {
	AllowUsernamePassword      bool               `json:"allowUsernamePassword"`
	AllowRegister              bool               `json:"allowRegister"`
	AllowExternalIDP           bool               `json:"allowExternalIdp"`
	ForceMFA                   bool               `json:"forceMfa"`
	ForceMFALocalOnly          bool               `json:"forceMfaLocalOnly"`
	PasswordCheckLifetime      time.Duration      `json:"passwordCheckLifetime"`
	ExternalLoginCheckLifetime time.Duration      `json:"externalLoginCheckLifetime"`
	MFAInitSkipLifetime        time.Duration      `json:"mfaInitSkipLifetime"`
	SecondFactorCheckLifetime  time.Duration      `json:"secondFactorCheckLifetime"`
	MultiFactorCheckLifetime   time.Duration      `json:"multiFactorCheckLifetime"`
	SecondFactors              []SecondFactorType `json:"secondFactors,omitempty"`
	MultiFactors               []MultiFactorType  `json:"multiFactors,omitempty"`
	IDPIDs                     []string           `json:"idpIds,omitempty"`
}

// PasswordComplexityDocument is the full password complexity policy at one
// level.
type PasswordComplexityDocument struct {
	MinLength    int  `json:"minLength"`
	HasUppercase bool `json:"hasUppercase"`
	HasLowercase bool `json:"hasLowercase"`
	HasNumber    bool `json:"hasNumber"`
	HasSymbol    bool `json:"hasSymbol"`
}

// DefaultPasswordComplexity is the built-in fallback when neither org nor
// instance defines a policy: min length 8, upper+lower+digit required,
// symbol optional.
func DefaultPasswordComplexity() PasswordComplexityDocument {
	return PasswordComplexityDocument{
		MinLength:    8,
		HasUppercase: true,
		HasLowercase: true,
		HasNumber:    true,
		HasSymbol:    false,
	}
}

// PolicyOwner is the policy aggregate keyed by owner id.
type PolicyOwner struct {
	AggregateRoot

	Login              *LoginPolicyDocument
	PasswordComplexity *PasswordComplexityDocument
}

// NewPolicyOwner returns an empty policy aggregate for the given owner.
// ownerID is an org id or the instance id itself.
func NewPolicyOwner(ownerID, instanceID string) *PolicyOwner {
	p := &PolicyOwner{AggregateRoot: NewAggregateRoot(PolicyAggregateType, ownerID, instanceID, ownerID)}
	p.Bind(p.Reduce)
	return p
}

// Reduce folds a single event into policy state.
func (p *PolicyOwner) Reduce(event *Event) error {
	switch event.EventType {
	case LoginPolicyAddedType, LoginPolicyChangedType:
		var payload LoginPolicyDocument
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		p.Login = &payload
	case LoginPolicyRemovedType:
		p.Login = nil
	case PasswordComplexityPolicyAddedType, PasswordComplexityPolicyChangedType:
		var payload PasswordComplexityDocument
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		p.PasswordComplexity = &payload
	case PasswordComplexityPolicyRemovedType:
		p.PasswordComplexity = nil
	}
	p.Advance(event)
	return nil
}

// SetLoginPolicy adds or replaces the login policy at this level.
func (p *PolicyOwner) SetLoginPolicy(eventID, editor string, doc LoginPolicyDocument) error {
	eventType := LoginPolicyAddedType
	if p.Login != nil {
		eventType = LoginPolicyChangedType
	}
	return p.Emit(eventType, eventID, editor, doc)
}

// RemoveLoginPolicy removes the org-level policy so the instance default
// applies again. Removing the instance default is rejected.
func (p *PolicyOwner) RemoveLoginPolicy(eventID, editor string) error {
	if p.Login == nil {
		return NotFound("POLICY-LoginNotFound", "login policy not set")
	}
	if p.ID() == p.InstanceID() {
		return FailedPrecondition("POLICY-InstanceDefault", "instance default policy cannot be removed")
	}
	return p.Emit(LoginPolicyRemovedType, eventID, editor, nil)
}

// SetPasswordComplexityPolicy adds or replaces the complexity policy.
func (p *PolicyOwner) SetPasswordComplexityPolicy(eventID, editor string, doc PasswordComplexityDocument) error {
	if doc.MinLength < 1 {
		return InvalidArgument("POLICY-MinLength", "minimum length must be positive")
	}
	eventType := PasswordComplexityPolicyAddedType
	if p.PasswordComplexity != nil {
		eventType = PasswordComplexityPolicyChangedType
	}
	return p.Emit(eventType, eventID, editor, doc)
}

// RemovePasswordComplexityPolicy removes the org-level complexity policy.
func (p *PolicyOwner) RemovePasswordComplexityPolicy(eventID, editor string) error {
	if p.PasswordComplexity == nil {
		return NotFound("POLICY-ComplexityNotFound", "password complexity policy not set")
	}
	if p.ID() == p.InstanceID() {
		return FailedPrecondition("POLICY-InstanceDefault", "instance default policy cannot be removed")
	}
	return p.Emit(PasswordComplexityPolicyRemovedType, eventID, editor, nil)
}
