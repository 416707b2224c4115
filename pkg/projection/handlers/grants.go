package handlers

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/store"
)

// GrantProjectionName identifies the user grant read model.
const GrantProjectionName = "user_grants"

// NewGrantProjection materializes the user_grants table.
func NewGrantProjection() store.Projection {
	return projection.NewBuilder(GrantProjectionName).
		On(domain.UserGrantAddedType, grantAdded).
		On(domain.UserGrantChangedType, grantChanged).
		On(domain.UserGrantDeactivatedType, grantStateChange(domain.GrantStateInactive)).
		On(domain.UserGrantReactivatedType, grantStateChange(domain.GrantStateActive)).
		On(domain.UserGrantRemovedType, grantRemoved).
		OnReset(resetGrants).
		Build()
}

func grantAdded(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.UserGrantAddedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_grants (instance_id, resource_owner, id, user_id, project_id,
			project_grant_id, role_keys, state, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, id) DO UPDATE SET
			role_keys = excluded.role_keys,
			changed_at = excluded.changed_at`,
		event.InstanceID, event.ResourceOwner, event.AggregateID,
		payload.UserID, payload.ProjectID, payload.ProjectGrantID,
		marshalStrings(payload.RoleKeys), int32(domain.GrantStateActive),
		event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func grantChanged(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.UserGrantChangedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE user_grants SET role_keys = ?, changed_at = ?
		WHERE instance_id = ? AND id = ?`,
		marshalStrings(payload.RoleKeys), event.CreatedAt.Unix(),
		event.InstanceID, event.AggregateID,
	)
	return err
}

func grantStateChange(state domain.GrantState) projection.HandlerFunc {
	return func(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE user_grants SET state = ?, changed_at = ?
			WHERE instance_id = ? AND id = ?`,
			int32(state), event.CreatedAt.Unix(),
			event.InstanceID, event.AggregateID,
		)
		return err
	}
}

func grantRemoved(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM user_grants WHERE instance_id = ? AND id = ?`,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func resetGrants(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM user_grants`)
	return err
}
