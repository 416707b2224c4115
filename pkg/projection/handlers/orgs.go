package handlers

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/store"
)

// OrgProjectionName identifies the org read model.
const OrgProjectionName = "orgs"

// NewOrgProjection materializes the orgs and org_domains tables.
func NewOrgProjection() store.Projection {
	return projection.NewBuilder(OrgProjectionName).
		On(domain.OrgAddedType, orgAdded).
		On(domain.OrgChangedType, orgChanged).
		On(domain.OrgDeactivatedType, orgStateChange(domain.OrgStateInactive)).
		On(domain.OrgReactivatedType, orgStateChange(domain.OrgStateActive)).
		On(domain.OrgRemovedType, orgRemoved).
		On(domain.OrgDomainAddedType, orgDomainAdded).
		On(domain.OrgDomainVerifiedType, orgDomainVerified).
		On(domain.OrgDomainPrimarySetType, orgDomainPrimarySet).
		On(domain.OrgDomainRemovedType, orgDomainRemoved).
		OnReset(resetOrgs).
		Build()
}

func orgAdded(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.OrgAddedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orgs (instance_id, id, name, state, sequence, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, id) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			sequence = excluded.sequence,
			changed_at = excluded.changed_at`,
		event.InstanceID, event.AggregateID, payload.Name,
		int32(domain.OrgStateActive), event.Sequence,
		event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func orgChanged(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.OrgChangedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE orgs SET name = ?, sequence = ?, changed_at = ?
		WHERE instance_id = ? AND id = ?`,
		payload.Name, event.Sequence, event.CreatedAt.Unix(),
		event.InstanceID, event.AggregateID,
	)
	return err
}

func orgStateChange(state domain.OrgState) projection.HandlerFunc {
	return func(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE orgs SET state = ?, sequence = ?, changed_at = ?
			WHERE instance_id = ? AND id = ?`,
			int32(state), event.Sequence, event.CreatedAt.Unix(),
			event.InstanceID, event.AggregateID,
		)
		return err
	}
}

func orgRemoved(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM org_domains WHERE instance_id = ? AND org_id = ?`,
		event.InstanceID, event.AggregateID,
	); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM orgs WHERE instance_id = ? AND id = ?`,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func orgDomainAdded(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.OrgDomainAddedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO org_domains (instance_id, org_id, domain, is_verified, is_primary, validation_type, created_at, changed_at)
		VALUES (?, ?, ?, 0, 0, ?, ?, ?)
		ON CONFLICT (instance_id, domain) DO UPDATE SET
			org_id = excluded.org_id,
			validation_type = excluded.validation_type,
			changed_at = excluded.changed_at`,
		event.InstanceID, event.AggregateID, payload.Domain,
		int32(payload.ValidationType), event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func orgDomainVerified(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.OrgDomainVerifiedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE org_domains SET is_verified = 1, changed_at = ?
		WHERE instance_id = ? AND domain = ?`,
		event.CreatedAt.Unix(), event.InstanceID, payload.Domain,
	)
	return err
}

func orgDomainPrimarySet(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.OrgDomainPrimarySetPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	// Exactly one primary per org.
	if _, err := tx.ExecContext(ctx, `
		UPDATE org_domains SET is_primary = 0, changed_at = ?
		WHERE instance_id = ? AND org_id = ?`,
		event.CreatedAt.Unix(), event.InstanceID, event.AggregateID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE org_domains SET is_primary = 1, changed_at = ?
		WHERE instance_id = ? AND domain = ?`,
		event.CreatedAt.Unix(), event.InstanceID, payload.Domain,
	); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE orgs SET primary_domain = ?, sequence = ?, changed_at = ?
		WHERE instance_id = ? AND id = ?`,
		payload.Domain, event.Sequence, event.CreatedAt.Unix(),
		event.InstanceID, event.AggregateID,
	)
	return err
}

func orgDomainRemoved(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.OrgDomainRemovedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM org_domains WHERE instance_id = ? AND domain = ?`,
		event.InstanceID, payload.Domain,
	)
	return err
}

func resetOrgs(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM org_domains`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM orgs`)
	return err
}
