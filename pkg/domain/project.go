package domain

// Aggregate and event types of the project aggregate. Applications are part
// of the project stream; project grants share projects to other orgs.
const (
	ProjectAggregateType = "project"

	ProjectAddedType             = "project.added"
	ProjectChangedType           = "project.changed"
	ProjectDeactivatedType       = "project.deactivated"
	ProjectReactivatedType       = "project.reactivated"
	ProjectRemovedType           = "project.removed"
	ProjectRoleAddedType         = "project.role.added"
	ProjectRoleRemovedType       = "project.role.removed"
	ApplicationAddedType         = "project.application.added"
	ApplicationRemovedType       = "project.application.removed"
	ProjectGrantAddedType        = "project.grant.added"
	ProjectGrantChangedType      = "project.grant.changed"
	ProjectGrantRemovedType      = "project.grant.removed"
)

type ProjectAddedPayload struct {
	Name string `json:"name"`
}

type ProjectRolePayload struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName,omitempty"`
}

type ApplicationAddedPayload struct {
	AppID        string   `json:"appId"`
	Name         string   `json:"name"`
	ClientID     string   `json:"clientId"`
	RedirectURIs []string `json:"redirectUris"`
}

type ApplicationRemovedPayload struct {
	AppID string `json:"appId"`
}

type ProjectGrantAddedPayload struct {
	GrantID      string   `json:"grantId"`
	GrantedOrgID string   `json:"grantedOrgId"`
	RoleKeys     []string `json:"roleKeys"`
}

type ProjectGrantChangedPayload struct {
	GrantID  string   `json:"grantId"`
	RoleKeys []string `json:"roleKeys"`
}

type ProjectGrantRemovedPayload struct {
	GrantID string `json:"grantId"`
}

// Application is an OAuth client registered under a project.
type Application struct {
	AppID        string
	Name         string
	ClientID     string
	RedirectURIs []string
}

// ProjectGrant shares a project with another organization restricted to a
// set of role keys.
type ProjectGrant struct {
	GrantID      string
	GrantedOrgID string
	RoleKeys     []string
}

// Project is the project aggregate.
type Project struct {
	AggregateRoot

	Name         string
	State        OrgState // projects share the active/inactive lifecycle
	Roles        []ProjectRolePayload
	Applications []*Application
	Grants       []*ProjectGrant
}

// NewProject returns an empty project aggregate ready to replay events.
func NewProject(id, instanceID, resourceOwner string) *Project {
	p := &Project{AggregateRoot: NewAggregateRoot(ProjectAggregateType, id, instanceID, resourceOwner)}
	p.Bind(p.Reduce)
	return p
}

// Reduce folds a single event into project state.
func (p *Project) Reduce(event *Event) error {
	switch event.EventType {
	case ProjectAddedType:
		var payload ProjectAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		p.Name = payload.Name
		p.State = OrgStateActive
	case ProjectDeactivatedType:
		p.State = OrgStateInactive
	case ProjectReactivatedType:
		p.State = OrgStateActive
	case ProjectRemovedType:
		p.State = OrgStateUnspecified
	case ProjectRoleAddedType:
		var payload ProjectRolePayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		p.Roles = append(p.Roles, payload)
	case ProjectRoleRemovedType:
		var payload ProjectRolePayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		for i, role := range p.Roles {
			if role.Key == payload.Key {
				p.Roles = append(p.Roles[:i], p.Roles[i+1:]...)
				break
			}
		}
	case ApplicationAddedType:
		var payload ApplicationAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		p.Applications = append(p.Applications, &Application{
			AppID: payload.AppID, Name: payload.Name,
			ClientID: payload.ClientID, RedirectURIs: payload.RedirectURIs,
		})
	case ApplicationRemovedType:
		var payload ApplicationRemovedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		for i, app := range p.Applications {
			if app.AppID == payload.AppID {
				p.Applications = append(p.Applications[:i], p.Applications[i+1:]...)
				break
			}
		}
	case ProjectGrantAddedType:
		var payload ProjectGrantAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		p.Grants = append(p.Grants, &ProjectGrant{
			GrantID: payload.GrantID, GrantedOrgID: payload.GrantedOrgID, RoleKeys: payload.RoleKeys,
		})
	case ProjectGrantChangedType:
		var payload ProjectGrantChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		for _, grant := range p.Grants {
			if grant.GrantID == payload.GrantID {
				grant.RoleKeys = payload.RoleKeys
				break
			}
		}
	case ProjectGrantRemovedType:
		var payload ProjectGrantRemovedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		for i, grant := range p.Grants {
			if grant.GrantID == payload.GrantID {
				p.Grants = append(p.Grants[:i], p.Grants[i+1:]...)
				break
			}
		}
	}
	p.Advance(event)
	return nil
}

// Add emits the creation event.
func (p *Project) Add(eventID, editor, name string) error {
	if p.Sequence() > 0 {
		return AlreadyExists("PROJECT-AlreadyExists", "project already exists")
	}
	if name == "" {
		return InvalidArgument("PROJECT-NameEmpty", "project name must not be empty")
	}
	return p.Emit(ProjectAddedType, eventID, editor, ProjectAddedPayload{Name: name})
}

// AddRole registers a role key on the project.
func (p *Project) AddRole(eventID, editor, key, displayName string) error {
	if p.State != OrgStateActive {
		return FailedPrecondition("PROJECT-NotActive", "project is not active")
	}
	for _, role := range p.Roles {
		if role.Key == key {
			return AlreadyExists("PROJECT-RoleAlreadyExists", "role key already exists")
		}
	}
	return p.Emit(ProjectRoleAddedType, eventID, editor, ProjectRolePayload{Key: key, DisplayName: displayName})
}

// AddApplication registers an OAuth client under the project.
func (p *Project) AddApplication(eventID, editor string, payload ApplicationAddedPayload) error {
	if p.State != OrgStateActive {
		return FailedPrecondition("PROJECT-NotActive", "project is not active")
	}
	for _, app := range p.Applications {
		if app.ClientID == payload.ClientID {
			return AlreadyExists("PROJECT-AppAlreadyExists", "client id already registered")
		}
	}
	return p.Emit(ApplicationAddedType, eventID, editor, payload)
}

// AddGrant shares the project with another org restricted to roleKeys.
// Only role keys defined on the project may be granted.
func (p *Project) AddGrant(eventID, editor string, payload ProjectGrantAddedPayload) error {
	if p.State != OrgStateActive {
		return FailedPrecondition("PROJECT-NotActive", "project is not active")
	}
	for _, key := range payload.RoleKeys {
		if !p.hasRoleKey(key) {
			return InvalidArgument("PROJECT-RoleUnknown", "granted role key is not defined on the project")
		}
	}
	return p.Emit(ProjectGrantAddedType, eventID, editor, payload)
}

func (p *Project) hasRoleKey(key string) bool {
	for _, role := range p.Roles {
		if role.Key == key {
			return true
		}
	}
	return false
}
