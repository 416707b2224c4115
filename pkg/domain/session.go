package domain

import "time"

// Aggregate and event types of the session aggregate.
const (
	SessionAggregateType = "session"

	SessionCreatedType    = "session.created"
	SessionTerminatedType = "session.terminated"
)

type SessionCreatedPayload struct {
	UserID     string     `json:"userId"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	AuthMethod string     `json:"authMethod,omitempty"`
}

type SessionTerminatedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// Session is the session aggregate. Sessions are born ACTIVE, transition
// to TERMINATED on logout or timeout, and are never revived.
type Session struct {
	AggregateRoot

	UserID      string
	State       SessionState
	CreatedAt   time.Time
	ChangedAt   time.Time
	ExpiresAt   *time.Time
	AuthMethods []string
}

// NewSession returns an empty session aggregate ready to replay events.
func NewSession(id, instanceID, resourceOwner string) *Session {
	s := &Session{AggregateRoot: NewAggregateRoot(SessionAggregateType, id, instanceID, resourceOwner)}
	s.Bind(s.Reduce)
	return s
}

// Reduce folds a single event into session state.
func (s *Session) Reduce(event *Event) error {
	switch event.EventType {
	case SessionCreatedType:
		var payload SessionCreatedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		s.UserID = payload.UserID
		s.State = SessionStateActive
		s.CreatedAt = event.CreatedAt
		s.ExpiresAt = payload.ExpiresAt
		if payload.AuthMethod != "" {
			s.AuthMethods = append(s.AuthMethods, payload.AuthMethod)
		}
	case SessionTerminatedType:
		s.State = SessionStateTerminated
	}
	s.ChangedAt = event.CreatedAt
	s.Advance(event)
	return nil
}

// Create emits the creation event; sessions start ACTIVE.
func (s *Session) Create(eventID, editor, userID string, expiresAt *time.Time, authMethod string) error {
	if s.Sequence() > 0 {
		return AlreadyExists("SESSION-AlreadyExists", "session already exists")
	}
	if userID == "" {
		return InvalidArgument("SESSION-UserEmpty", "user id must not be empty")
	}
	return s.Emit(SessionCreatedType, eventID, editor, SessionCreatedPayload{
		UserID: userID, ExpiresAt: expiresAt, AuthMethod: authMethod,
	})
}

// Terminate ends the session. Terminating a TERMINATED session is a no-op.
func (s *Session) Terminate(eventID, editor, reason string) error {
	if s.Sequence() == 0 {
		return NotFound("SESSION-NotFound", "session does not exist")
	}
	if s.State == SessionStateTerminated {
		return nil // idempotent
	}
	return s.Emit(SessionTerminatedType, eventID, editor, SessionTerminatedPayload{Reason: reason})
}

// IsActive reports whether the session is usable at the given time:
// state ACTIVE and (no expiry or expiry in the future). An expired active
// session reads as terminated without being rewritten.
func (s *Session) IsActive(now time.Time) bool {
	if s.State != SessionStateActive {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}
