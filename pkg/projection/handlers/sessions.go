package handlers

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/store"
)

// SessionProjectionName identifies the session read model.
const SessionProjectionName = "sessions"

// NewSessionProjection materializes the sessions table.
func NewSessionProjection() store.Projection {
	return projection.NewBuilder(SessionProjectionName).
		On(domain.SessionCreatedType, sessionCreated).
		On(domain.SessionTerminatedType, sessionTerminated).
		OnReset(resetSessions).
		Build()
}

func sessionCreated(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.SessionCreatedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}

	var expiresAt any
	if payload.ExpiresAt != nil {
		expiresAt = payload.ExpiresAt.Unix()
	}
	authMethods := []string{}
	if payload.AuthMethod != "" {
		authMethods = append(authMethods, payload.AuthMethod)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (instance_id, resource_owner, id, user_id, state,
			auth_methods, expires_at, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, id) DO UPDATE SET
			user_id = excluded.user_id,
			changed_at = excluded.changed_at`,
		event.InstanceID, event.ResourceOwner, event.AggregateID, payload.UserID,
		int32(domain.SessionStateActive), marshalStrings(authMethods), expiresAt,
		event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func sessionTerminated(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sessions SET state = ?, changed_at = ?
		WHERE instance_id = ? AND id = ?`,
		int32(domain.SessionStateTerminated), event.CreatedAt.Unix(),
		event.InstanceID, event.AggregateID,
	)
	return err
}

func resetSessions(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM sessions`)
	return err
}
