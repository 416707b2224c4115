package domain

// Aggregate and event types of the user grant aggregate.
const (
	UserGrantAggregateType = "usergrant"

	UserGrantAddedType       = "usergrant.added"
	UserGrantChangedType     = "usergrant.changed"
	UserGrantDeactivatedType = "usergrant.deactivated"
	UserGrantReactivatedType = "usergrant.reactivated"
	UserGrantRemovedType     = "usergrant.removed"
)

type UserGrantAddedPayload struct {
	UserID         string   `json:"userId"`
	ProjectID      string   `json:"projectId"`
	ProjectGrantID string   `json:"projectGrantId,omitempty"`
	RoleKeys       []string `json:"roleKeys"`
}

type UserGrantChangedPayload struct {
	RoleKeys []string `json:"roleKeys"`
}

// UserGrant authorizes a user to act on a project under a set of roles.
type UserGrant struct {
	AggregateRoot

	UserID         string
	ProjectID      string
	ProjectGrantID string
	RoleKeys       []string
	State          GrantState
}

// NewUserGrant returns an empty user grant aggregate ready to replay events.
func NewUserGrant(id, instanceID, resourceOwner string) *UserGrant {
	g := &UserGrant{AggregateRoot: NewAggregateRoot(UserGrantAggregateType, id, instanceID, resourceOwner)}
	g.Bind(g.Reduce)
	return g
}

// Reduce folds a single event into grant state.
func (g *UserGrant) Reduce(event *Event) error {
	switch event.EventType {
	case UserGrantAddedType:
		var payload UserGrantAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		g.UserID = payload.UserID
		g.ProjectID = payload.ProjectID
		g.ProjectGrantID = payload.ProjectGrantID
		g.RoleKeys = payload.RoleKeys
		g.State = GrantStateActive
	case UserGrantChangedType:
		var payload UserGrantChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		g.RoleKeys = payload.RoleKeys
	case UserGrantDeactivatedType:
		g.State = GrantStateInactive
	case UserGrantReactivatedType:
		g.State = GrantStateActive
	case UserGrantRemovedType:
		g.State = GrantStateRemoved
	}
	g.Advance(event)
	return nil
}

// Add emits the creation event.
func (g *UserGrant) Add(eventID, editor string, payload UserGrantAddedPayload) error {
	if g.Sequence() > 0 {
		return AlreadyExists("GRANT-AlreadyExists", "user grant already exists")
	}
	if payload.UserID == "" || payload.ProjectID == "" {
		return InvalidArgument("GRANT-MissingIDs", "user id and project id are required")
	}
	return g.Emit(UserGrantAddedType, eventID, editor, payload)
}

// ChangeRoles replaces the role keys of an existing grant.
func (g *UserGrant) ChangeRoles(eventID, editor string, roleKeys []string) error {
	if g.State == GrantStateUnspecified || g.State == GrantStateRemoved {
		return NotFound("GRANT-NotFound", "user grant does not exist")
	}
	return g.Emit(UserGrantChangedType, eventID, editor, UserGrantChangedPayload{RoleKeys: roleKeys})
}

// Deactivate suspends the grant; authorization checks ignore inactive grants.
func (g *UserGrant) Deactivate(eventID, editor string) error {
	if g.State != GrantStateActive {
		return FailedPrecondition("GRANT-NotActive", "user grant is not active")
	}
	return g.Emit(UserGrantDeactivatedType, eventID, editor, nil)
}

// Reactivate restores an inactive grant.
func (g *UserGrant) Reactivate(eventID, editor string) error {
	if g.State != GrantStateInactive {
		return FailedPrecondition("GRANT-NotInactive", "user grant is not inactive")
	}
	return g.Emit(UserGrantReactivatedType, eventID, editor, nil)
}

// Remove emits the terminal event.
func (g *UserGrant) Remove(eventID, editor string) error {
	if g.State == GrantStateUnspecified || g.State == GrantStateRemoved {
		return NotFound("GRANT-NotFound", "user grant does not exist")
	}
	return g.Emit(UserGrantRemovedType, eventID, editor, nil)
}

// HasRole reports whether the grant carries the given role key.
func (g *UserGrant) HasRole(role string) bool {
	for _, key := range g.RoleKeys {
		if key == role {
			return true
		}
	}
	return false
}
