package handlers

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/store"
)

// UserProjectionName identifies the user read model.
const UserProjectionName = "users"

// NewUserProjection materializes the users table.
func NewUserProjection() store.Projection {
	return projection.NewBuilder(UserProjectionName).
		On(domain.HumanAddedType, humanAdded).
		On(domain.MachineAddedType, machineAdded).
		On(domain.UserInitializedType, userStateChange(domain.UserStateActive)).
		On(domain.UserDeactivatedType, userStateChange(domain.UserStateInactive)).
		On(domain.UserReactivatedType, userStateChange(domain.UserStateActive)).
		On(domain.UserLockedType, userStateChange(domain.UserStateLocked)).
		On(domain.UserUnlockedType, userStateChange(domain.UserStateActive)).
		On(domain.UserSuspendedType, userStateChange(domain.UserStateSuspended)).
		On(domain.UserUnsuspendedType, userStateChange(domain.UserStateActive)).
		On(domain.UserRemovedType, userRemoved).
		On(domain.EmailVerifiedType, emailVerified).
		On(domain.PhoneVerifiedType, phoneVerified).
		On(domain.PasswordChangedType, passwordChanged).
		OnReset(resetUsers).
		Build()
}

func humanAdded(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.HumanAddedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (instance_id, resource_owner, id, username, user_type, state,
			email, first_name, last_name, phone, sequence, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			sequence = excluded.sequence,
			changed_at = excluded.changed_at`,
		event.InstanceID, event.ResourceOwner, event.AggregateID, payload.Username,
		int32(domain.UserTypeHuman), int32(domain.UserStateInitial),
		payload.Email, payload.FirstName, payload.LastName, payload.Phone,
		event.Sequence, event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func machineAdded(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.MachineAddedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (instance_id, resource_owner, id, username, user_type, state,
			sequence, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, id) DO UPDATE SET
			username = excluded.username,
			sequence = excluded.sequence,
			changed_at = excluded.changed_at`,
		event.InstanceID, event.ResourceOwner, event.AggregateID, payload.Username,
		int32(domain.UserTypeMachine), int32(domain.UserStateActive),
		event.Sequence, event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func userStateChange(state domain.UserState) projection.HandlerFunc {
	return func(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE users SET state = ?, sequence = ?, changed_at = ?
			WHERE instance_id = ? AND id = ?`,
			int32(state), event.Sequence, event.CreatedAt.Unix(),
			event.InstanceID, event.AggregateID,
		)
		return err
	}
}

func userRemoved(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM users WHERE instance_id = ? AND id = ?`,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func emailVerified(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.EmailVerifiedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET email = ?, email_verified = 1, sequence = ?, changed_at = ?
		WHERE instance_id = ? AND id = ?`,
		payload.Email, event.Sequence, event.CreatedAt.Unix(),
		event.InstanceID, event.AggregateID,
	)
	return err
}

func phoneVerified(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.PhoneVerifiedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET phone = ?, phone_verified = 1, sequence = ?, changed_at = ?
		WHERE instance_id = ? AND id = ?`,
		payload.Phone, event.Sequence, event.CreatedAt.Unix(),
		event.InstanceID, event.AggregateID,
	)
	return err
}

// passwordChanged only bumps bookkeeping; the hash never reaches read models.
func passwordChanged(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET sequence = ?, changed_at = ?
		WHERE instance_id = ? AND id = ?`,
		event.Sequence, event.CreatedAt.Unix(),
		event.InstanceID, event.AggregateID,
	)
	return err
}

func resetUsers(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM users`)
	return err
}
