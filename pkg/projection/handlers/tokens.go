package handlers

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/store"
)

// TokenProjectionName identifies the token read model.
const TokenProjectionName = "tokens"

// NewTokenProjection materializes the tokens table.
func NewTokenProjection() store.Projection {
	return projection.NewBuilder(TokenProjectionName).
		On(domain.TokenAddedType, tokenAdded).
		On(domain.TokenRefreshedType, tokenRefreshed).
		On(domain.TokenRevokedType, tokenRevoked).
		OnReset(resetTokens).
		Build()
}

func tokenAdded(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.TokenAddedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}

	var idleExpiresAt any
	if payload.IdleExpiresAt != nil {
		idleExpiresAt = payload.IdleExpiresAt.Unix()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO tokens (instance_id, resource_owner, id, user_id, application_id,
			token_type, scopes, audiences, auth_methods, expires_at, idle_expires_at,
			created_at, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, id) DO UPDATE SET
			changed_at = excluded.changed_at`,
		event.InstanceID, event.ResourceOwner, event.AggregateID, payload.UserID,
		payload.ApplicationID, int32(payload.TokenType),
		marshalStrings(payload.Scopes), marshalStrings(payload.Audiences),
		marshalStrings(payload.AuthMethods), payload.ExpiresAt.Unix(), idleExpiresAt,
		event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func tokenRefreshed(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.TokenRefreshedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE tokens SET idle_expires_at = ?, changed_at = ?
		WHERE instance_id = ? AND id = ?`,
		payload.IdleExpiresAt.Unix(), event.CreatedAt.Unix(),
		event.InstanceID, event.AggregateID,
	)
	return err
}

func tokenRevoked(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE tokens SET revoked = 1, changed_at = ?
		WHERE instance_id = ? AND id = ?`,
		event.CreatedAt.Unix(), event.InstanceID, event.AggregateID,
	)
	return err
}

func resetTokens(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM tokens`)
	return err
}
