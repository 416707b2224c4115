package domain

import (
	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/secure/precis"
)

// Aggregate and event types of the user aggregate.
const (
	UserAggregateType = "user"

	HumanAddedType       = "user.human.added"
	MachineAddedType     = "user.machine.added"
	UserDeactivatedType  = "user.deactivated"
	UserReactivatedType  = "user.reactivated"
	UserLockedType       = "user.locked"
	UserUnlockedType     = "user.unlocked"
	UserRemovedType      = "user.removed"
	EmailVerifiedType    = "user.email.verified"
	PhoneVerifiedType    = "user.phone.verified"
	PasswordChangedType  = "user.password.changed"
	UserInitializedType  = "user.initialized"
	UserSuspendedType    = "user.suspended"
	UserUnsuspendedType  = "user.unsuspended"
)

// UniqueUsername is the constraint index claimed per instance by usernames.
const UniqueUsername = "username"

// minPasswordEntropyBits is the entropy floor applied on top of the
// configured complexity policy.
const minPasswordEntropyBits = 50

type HumanAddedPayload struct {
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

type MachineAddedPayload struct {
	Username    string `json:"username"`
	Description string `json:"description,omitempty"`
}

type EmailVerifiedPayload struct {
	Email string `json:"email"`
}

type PhoneVerifiedPayload struct {
	Phone string `json:"phone"`
}

type PasswordChangedPayload struct {
	EncodedHash string `json:"encodedHash"`
}

// User is the user aggregate, covering both human and machine users.
type User struct {
	AggregateRoot

	Type          UserType
	State         UserState
	Username      string
	Email         string
	EmailVerified bool
	Phone         string
	PhoneVerified bool
	PasswordHash  string
}

// NewUser returns an empty user aggregate ready to replay events.
func NewUser(id, instanceID, resourceOwner string) *User {
	u := &User{AggregateRoot: NewAggregateRoot(UserAggregateType, id, instanceID, resourceOwner)}
	u.Bind(u.Reduce)
	return u
}

// NormalizeUsername applies the PRECIS UsernameCaseMapped profile so that
// usernames compare case-insensitively and confusable strings are rejected.
func NormalizeUsername(username string) (string, error) {
	normalized, err := precis.UsernameCaseMapped.String(username)
	if err != nil {
		return "", InvalidArgument("USER-UsernameInvalid", "username contains disallowed characters").WithParent(err)
	}
	return normalized, nil
}

// Reduce folds a single event into user state.
func (u *User) Reduce(event *Event) error {
	switch event.EventType {
	case HumanAddedType:
		var payload HumanAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		u.Type = UserTypeHuman
		u.State = UserStateInitial
		u.Username = payload.Username
		u.Email = payload.Email
		u.Phone = payload.Phone
	case MachineAddedType:
		var payload MachineAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		u.Type = UserTypeMachine
		u.State = UserStateActive
		u.Username = payload.Username
	case UserInitializedType:
		u.State = UserStateActive
	case UserDeactivatedType:
		u.State = UserStateInactive
	case UserReactivatedType:
		u.State = UserStateActive
	case UserLockedType:
		u.State = UserStateLocked
	case UserUnlockedType:
		u.State = UserStateActive
	case UserSuspendedType:
		u.State = UserStateSuspended
	case UserUnsuspendedType:
		u.State = UserStateActive
	case UserRemovedType:
		u.State = UserStateDeleted
	case EmailVerifiedType:
		var payload EmailVerifiedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		u.Email = payload.Email
		u.EmailVerified = true
	case PhoneVerifiedType:
		var payload PhoneVerifiedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		u.Phone = payload.Phone
		u.PhoneVerified = true
	case PasswordChangedType:
		var payload PasswordChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		u.PasswordHash = payload.EncodedHash
	}
	u.Advance(event)
	return nil
}

// AddHuman emits the creation event for a human user and claims the
// normalized username within the instance.
func (u *User) AddHuman(eventID, editor string, payload HumanAddedPayload) error {
	if u.Sequence() > 0 {
		return AlreadyExists("USER-AlreadyExists", "user already exists")
	}
	username, err := NormalizeUsername(payload.Username)
	if err != nil {
		return err
	}
	payload.Username = username
	return u.Emit(HumanAddedType, eventID, editor, payload,
		NewUniqueClaim(UniqueUsername, u.InstanceID(), username))
}

// AddMachine emits the creation event for a machine user.
func (u *User) AddMachine(eventID, editor string, payload MachineAddedPayload) error {
	if u.Sequence() > 0 {
		return AlreadyExists("USER-AlreadyExists", "user already exists")
	}
	username, err := NormalizeUsername(payload.Username)
	if err != nil {
		return err
	}
	payload.Username = username
	return u.Emit(MachineAddedType, eventID, editor, payload,
		NewUniqueClaim(UniqueUsername, u.InstanceID(), username))
}

// ChangePassword hashes and stores a new password. Complexity is enforced
// by the caller against the effective policy; the aggregate keeps a
// library-entropy floor so a permissive policy cannot admit trivial secrets.
func (u *User) ChangePassword(eventID, editor, plaintext string) error {
	if !u.State.Exists() {
		return NotFound("USER-NotFound", "user does not exist")
	}
	if err := passwordvalidator.Validate(plaintext, minPasswordEntropyBits); err != nil {
		return InvalidArgument(CodeWeakPassword, "password entropy too low").WithParent(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return Internal("USER-PasswordHash", "hash password").WithParent(err)
	}
	return u.Emit(PasswordChangedType, eventID, editor, PasswordChangedPayload{EncodedHash: string(hash)})
}

// CheckPassword compares a candidate against the stored hash.
func (u *User) CheckPassword(plaintext string) error {
	if u.PasswordHash == "" {
		return Unauthenticated(CodeInvalidCredentials, "no password set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)); err != nil {
		return Unauthenticated(CodeInvalidCredentials, "invalid credentials")
	}
	return nil
}

// Lock locks an existing user.
func (u *User) Lock(eventID, editor string) error {
	if !u.State.Exists() {
		return NotFound("USER-NotFound", "user does not exist")
	}
	if u.State == UserStateLocked {
		return nil // idempotent
	}
	return u.Emit(UserLockedType, eventID, editor, nil)
}

// Unlock returns a locked user to active.
func (u *User) Unlock(eventID, editor string) error {
	if u.State != UserStateLocked {
		return FailedPrecondition("USER-NotLocked", "user is not locked")
	}
	return u.Emit(UserUnlockedType, eventID, editor, nil)
}

// Deactivate transitions an active user to inactive.
func (u *User) Deactivate(eventID, editor string) error {
	if u.State != UserStateActive && u.State != UserStateInitial {
		return FailedPrecondition("USER-NotActive", "user is not active")
	}
	return u.Emit(UserDeactivatedType, eventID, editor, nil)
}

// Remove emits the terminal event and releases the username claim.
func (u *User) Remove(eventID, editor string) error {
	if !u.State.Exists() {
		return NotFound("USER-NotFound", "user does not exist")
	}
	return u.Emit(UserRemovedType, eventID, editor, nil,
		NewUniqueRelease(UniqueUsername, u.InstanceID(), u.Username))
}

// VerifyEmail records a verified email address.
func (u *User) VerifyEmail(eventID, editor, email string) error {
	if !u.State.Exists() {
		return NotFound("USER-NotFound", "user does not exist")
	}
	return u.Emit(EmailVerifiedType, eventID, editor, EmailVerifiedPayload{Email: email})
}

// CheckAuthAllowed rejects authentication for users that must not sign in.
func (u *User) CheckAuthAllowed() error {
	switch u.State {
	case UserStateActive, UserStateInitial:
		return nil
	case UserStateLocked:
		return PermissionDenied(CodeUserLocked, "user is locked")
	case UserStateSuspended:
		return PermissionDenied(CodeUserSuspended, "user is suspended")
	case UserStateInactive:
		return PermissionDenied(CodeUserInactive, "user is inactive")
	default:
		return NotFound("USER-NotFound", "user does not exist")
	}
}
