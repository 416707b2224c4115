package handlers

import (
	"context"
	"database/sql"

	"github.com/goccy/go-json"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/store"
)

// PolicyProjectionName identifies the policy read models.
const PolicyProjectionName = "policies"

// NewPolicyProjection materializes login_policies and
// password_complexity_policies. The policy aggregate ID is the owner: an
// org id for org level, the instance id for instance level.
func NewPolicyProjection() store.Projection {
	return projection.NewBuilder(PolicyProjectionName).
		On(domain.LoginPolicyAddedType, loginPolicySet).
		On(domain.LoginPolicyChangedType, loginPolicySet).
		On(domain.LoginPolicyRemovedType, loginPolicyRemoved).
		On(domain.PasswordComplexityPolicyAddedType, complexityPolicySet).
		On(domain.PasswordComplexityPolicyChangedType, complexityPolicySet).
		On(domain.PasswordComplexityPolicyRemovedType, complexityPolicyRemoved).
		OnReset(resetPolicies).
		Build()
}

func loginPolicySet(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.LoginPolicyDocument
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	doc, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO login_policies (instance_id, owner_id, policy, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, owner_id) DO UPDATE SET
			policy = excluded.policy,
			changed_at = excluded.changed_at`,
		event.InstanceID, event.AggregateID, string(doc),
		event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func loginPolicyRemoved(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM login_policies WHERE instance_id = ? AND owner_id = ?`,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func complexityPolicySet(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.PasswordComplexityDocument
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO password_complexity_policies (instance_id, owner_id, min_length,
			has_uppercase, has_lowercase, has_number, has_symbol, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, owner_id) DO UPDATE SET
			min_length = excluded.min_length,
			has_uppercase = excluded.has_uppercase,
			has_lowercase = excluded.has_lowercase,
			has_number = excluded.has_number,
			has_symbol = excluded.has_symbol,
			changed_at = excluded.changed_at`,
		event.InstanceID, event.AggregateID, payload.MinLength,
		payload.HasUppercase, payload.HasLowercase, payload.HasNumber, payload.HasSymbol,
		event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func complexityPolicyRemoved(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM password_complexity_policies WHERE instance_id = ? AND owner_id = ?`,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func resetPolicies(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM login_policies`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM password_complexity_policies`)
	return err
}
