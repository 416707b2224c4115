package domain

// Aggregate and event types of the org aggregate.
const (
	OrgAggregateType = "org"

	OrgAddedType            = "org.added"
	OrgChangedType          = "org.changed"
	OrgDeactivatedType      = "org.deactivated"
	OrgReactivatedType      = "org.reactivated"
	OrgRemovedType          = "org.removed"
	OrgDomainAddedType      = "org.domain.added"
	OrgDomainVerifiedType   = "org.domain.verified"
	OrgDomainPrimarySetType = "org.domain.primary.set"
	OrgDomainRemovedType    = "org.domain.removed"
)

// UniqueOrgDomain is the constraint index claimed by verified domains.
const UniqueOrgDomain = "org_domain"

type OrgAddedPayload struct {
	Name string `json:"name"`
}

type OrgChangedPayload struct {
	Name string `json:"name"`
}

type OrgDomainAddedPayload struct {
	Domain         string               `json:"domain"`
	ValidationType DomainValidationType `json:"validationType"`
	ValidationCode string               `json:"validationCode,omitempty"`
}

type OrgDomainVerifiedPayload struct {
	Domain string `json:"domain"`
}

type OrgDomainPrimarySetPayload struct {
	Domain string `json:"domain"`
}

type OrgDomainRemovedPayload struct {
	Domain string `json:"domain"`
}

// OrgDomain is a domain claim of an org. The primary-domain relation is a
// boolean on the domain row; there is no back-pointer on the org.
type OrgDomain struct {
	Domain         string
	Verified       bool
	Primary        bool
	ValidationType DomainValidationType
	ValidationCode string
}

// Org is the organization aggregate.
type Org struct {
	AggregateRoot

	Name          string
	State         OrgState
	PrimaryDomain string
	Domains       []*OrgDomain
}

// NewOrg returns an empty org aggregate ready to replay events.
// The org is its own resource owner.
func NewOrg(id, instanceID string) *Org {
	o := &Org{AggregateRoot: NewAggregateRoot(OrgAggregateType, id, instanceID, id)}
	o.Bind(o.Reduce)
	return o
}

// Reduce folds a single event into org state.
func (o *Org) Reduce(event *Event) error {
	switch event.EventType {
	case OrgAddedType:
		var payload OrgAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		o.Name = payload.Name
		o.State = OrgStateActive
	case OrgChangedType:
		var payload OrgChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		o.Name = payload.Name
	case OrgDeactivatedType:
		o.State = OrgStateInactive
	case OrgReactivatedType:
		o.State = OrgStateActive
	case OrgRemovedType:
		o.State = OrgStateUnspecified
	case OrgDomainAddedType:
		var payload OrgDomainAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		o.Domains = append(o.Domains, &OrgDomain{
			Domain:         payload.Domain,
			ValidationType: payload.ValidationType,
			ValidationCode: payload.ValidationCode,
		})
	case OrgDomainVerifiedType:
		var payload OrgDomainVerifiedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		if d := o.domain(payload.Domain); d != nil {
			d.Verified = true
		}
	case OrgDomainPrimarySetType:
		var payload OrgDomainPrimarySetPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		for _, d := range o.Domains {
			d.Primary = d.Domain == payload.Domain
		}
		o.PrimaryDomain = payload.Domain
	case OrgDomainRemovedType:
		var payload OrgDomainRemovedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		for i, d := range o.Domains {
			if d.Domain == payload.Domain {
				o.Domains = append(o.Domains[:i], o.Domains[i+1:]...)
				break
			}
		}
		if o.PrimaryDomain == payload.Domain {
			o.PrimaryDomain = ""
		}
	}
	o.Advance(event)
	return nil
}

func (o *Org) domain(name string) *OrgDomain {
	for _, d := range o.Domains {
		if d.Domain == name {
			return d
		}
	}
	return nil
}

// Add emits the creation event. The aggregate must not exist yet.
func (o *Org) Add(eventID, editor, name string) error {
	if o.Sequence() > 0 {
		return AlreadyExists("ORG-AlreadyExists", "org already exists")
	}
	if name == "" {
		return InvalidArgument("ORG-NameEmpty", "org name must not be empty")
	}
	return o.Emit(OrgAddedType, eventID, editor, OrgAddedPayload{Name: name})
}

// Deactivate transitions an active org to inactive.
func (o *Org) Deactivate(eventID, editor string) error {
	if o.State != OrgStateActive {
		return FailedPrecondition("ORG-NotActive", "org is not active")
	}
	return o.Emit(OrgDeactivatedType, eventID, editor, nil)
}

// Reactivate transitions an inactive org back to active.
func (o *Org) Reactivate(eventID, editor string) error {
	if o.State != OrgStateInactive {
		return FailedPrecondition("ORG-NotInactive", "org is not inactive")
	}
	return o.Emit(OrgReactivatedType, eventID, editor, nil)
}

// AddDomain registers a domain claim with its validation method.
func (o *Org) AddDomain(eventID, editor, name string, validation DomainValidationType, code string) error {
	if name == "" {
		return InvalidArgument("ORG-DomainEmpty", "domain must not be empty")
	}
	if o.domain(name) != nil {
		return AlreadyExists("ORG-DomainAlreadyExists", "domain already registered")
	}
	return o.Emit(OrgDomainAddedType, eventID, editor, OrgDomainAddedPayload{
		Domain: name, ValidationType: validation, ValidationCode: code,
	})
}

// VerifyDomain marks a registered domain as verified. The verified name is
// claimed instance-wide so two orgs cannot verify the same domain.
func (o *Org) VerifyDomain(eventID, editor, name string) error {
	d := o.domain(name)
	if d == nil {
		return NotFound("ORG-DomainNotFound", "domain not registered")
	}
	if d.Verified {
		return nil // idempotent
	}
	return o.Emit(OrgDomainVerifiedType, eventID, editor, OrgDomainVerifiedPayload{Domain: name},
		NewUniqueClaim(UniqueOrgDomain, o.InstanceID(), name))
}

// SetPrimaryDomain selects the primary domain; it must be verified.
func (o *Org) SetPrimaryDomain(eventID, editor, name string) error {
	d := o.domain(name)
	if d == nil {
		return NotFound("ORG-DomainNotFound", "domain not registered")
	}
	if !d.Verified {
		return FailedPrecondition("ORG-DomainNotVerified", "primary domain must be verified")
	}
	return o.Emit(OrgDomainPrimarySetType, eventID, editor, OrgDomainPrimarySetPayload{Domain: name})
}

// RemoveDomain drops a domain claim, releasing the verified-name claim.
func (o *Org) RemoveDomain(eventID, editor, name string) error {
	d := o.domain(name)
	if d == nil {
		return NotFound("ORG-DomainNotFound", "domain not registered")
	}
	if d.Primary {
		return FailedPrecondition("ORG-PrimaryDomain", "primary domain cannot be removed")
	}
	var constraints []UniqueConstraint
	if d.Verified {
		constraints = append(constraints, NewUniqueRelease(UniqueOrgDomain, o.InstanceID(), name))
	}
	return o.Emit(OrgDomainRemovedType, eventID, editor, OrgDomainRemovedPayload{Domain: name}, constraints...)
}
