package domain

// Aggregate and event types of the instance aggregate. The instance is the
// tenancy root; feature flags set on it apply instance-wide.
const (
	InstanceAggregateType = "instance"

	InstanceAddedType          = "instance.added"
	InstanceChangedType        = "instance.changed"
	InstanceRemovedType        = "instance.removed"
	InstanceFeaturesSetType    = "instance.features.set"
	InstanceFeaturesResetType  = "instance.features.reset"
	InstanceDomainAddedType    = "instance.domain.added"
	InstanceDomainRemovedType  = "instance.domain.removed"
	InstanceDomainPrimarySetType = "instance.domain.primary.set"
)

// UniqueInstanceDomain is the constraint index claimed globally by instance
// domains. Instance domains route requests to instances and therefore must
// be unique across all instances; the claim uses an empty instance id.
const UniqueInstanceDomain = "instance_domain"

type InstanceAddedPayload struct {
	Name string `json:"name"`
}

// Features are the named boolean flags of an instance. ImprovedPerformance
// keeps the historical wire name "improveredPerformance" for compatibility.
type Features struct {
	LoginDefaultOrg         bool `json:"loginDefaultOrg"`
	UserSchema              bool `json:"userSchema"`
	TokenExchange           bool `json:"tokenExchange"`
	ImprovedPerformance     bool `json:"improveredPerformance"`
	DebugOIDCParentError    bool `json:"debugOidcParentError"`
	PermissionCheckV2       bool `json:"permissionCheckV2"`
	ConsoleUseV2UserAPI     bool `json:"consoleUseV2UserApi"`
	DisableUserTokenEvent   bool `json:"disableUserTokenEvent"`
	EnableBackChannelLogout bool `json:"enableBackChannelLogout"`
}

type InstanceDomainPayload struct {
	Domain string `json:"domain"`
}

// Instance is the instance aggregate.
type Instance struct {
	AggregateRoot

	Name          string
	Removed       bool
	Features      *Features
	Domains       []string
	PrimaryDomain string
}

// NewInstance returns an empty instance aggregate ready to replay events.
// The instance is its own resource owner.
func NewInstance(id string) *Instance {
	i := &Instance{AggregateRoot: NewAggregateRoot(InstanceAggregateType, id, id, id)}
	i.Bind(i.Reduce)
	return i
}

// Reduce folds a single event into instance state.
func (i *Instance) Reduce(event *Event) error {
	switch event.EventType {
	case InstanceAddedType, InstanceChangedType:
		var payload InstanceAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		i.Name = payload.Name
	case InstanceRemovedType:
		i.Removed = true
	case InstanceFeaturesSetType:
		var payload Features
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		i.Features = &payload
	case InstanceFeaturesResetType:
		i.Features = nil
	case InstanceDomainAddedType:
		var payload InstanceDomainPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		i.Domains = append(i.Domains, payload.Domain)
	case InstanceDomainRemovedType:
		var payload InstanceDomainPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		for idx, d := range i.Domains {
			if d == payload.Domain {
				i.Domains = append(i.Domains[:idx], i.Domains[idx+1:]...)
				break
			}
		}
		if i.PrimaryDomain == payload.Domain {
			i.PrimaryDomain = ""
		}
	case InstanceDomainPrimarySetType:
		var payload InstanceDomainPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		i.PrimaryDomain = payload.Domain
	}
	i.Advance(event)
	return nil
}

// Add emits the creation event.
func (i *Instance) Add(eventID, editor, name string) error {
	if i.Sequence() > 0 {
		return AlreadyExists("INSTANCE-AlreadyExists", "instance already exists")
	}
	if name == "" {
		return InvalidArgument("INSTANCE-NameEmpty", "instance name must not be empty")
	}
	return i.Emit(InstanceAddedType, eventID, editor, InstanceAddedPayload{Name: name})
}

// SetFeatures replaces the full feature set of the instance.
func (i *Instance) SetFeatures(eventID, editor string, features Features) error {
	if i.Sequence() == 0 || i.Removed {
		return NotFound("INSTANCE-NotFound", "instance does not exist")
	}
	return i.Emit(InstanceFeaturesSetType, eventID, editor, features)
}

// ResetFeatures drops all instance flags so system defaults apply.
func (i *Instance) ResetFeatures(eventID, editor string) error {
	if i.Features == nil {
		return NotFound("INSTANCE-FeaturesNotSet", "instance features not set")
	}
	return i.Emit(InstanceFeaturesResetType, eventID, editor, nil)
}

// AddDomain claims a globally unique instance domain.
func (i *Instance) AddDomain(eventID, editor, domain string) error {
	if i.Sequence() == 0 || i.Removed {
		return NotFound("INSTANCE-NotFound", "instance does not exist")
	}
	for _, d := range i.Domains {
		if d == domain {
			return AlreadyExists("INSTANCE-DomainExists", "domain already added")
		}
	}
	return i.Emit(InstanceDomainAddedType, eventID, editor, InstanceDomainPayload{Domain: domain},
		NewUniqueClaim(UniqueInstanceDomain, "", domain))
}

// SetPrimaryDomain marks an existing domain as primary.
func (i *Instance) SetPrimaryDomain(eventID, editor, domain string) error {
	found := false
	for _, d := range i.Domains {
		if d == domain {
			found = true
			break
		}
	}
	if !found {
		return NotFound("INSTANCE-DomainNotFound", "domain not added to instance")
	}
	return i.Emit(InstanceDomainPrimarySetType, eventID, editor, InstanceDomainPayload{Domain: domain})
}
