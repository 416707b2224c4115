package handlers

import (
	"context"
	"database/sql"

	"github.com/goccy/go-json"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/store"
)

// InstanceProjectionName identifies the instance read models.
const InstanceProjectionName = "instances"

// NewInstanceProjection materializes instances, instance_domains and
// features.
func NewInstanceProjection() store.Projection {
	return projection.NewBuilder(InstanceProjectionName).
		On(domain.InstanceAddedType, instanceAdded).
		On(domain.InstanceChangedType, instanceAdded).
		On(domain.InstanceRemovedType, instanceRemoved).
		On(domain.InstanceFeaturesSetType, featuresSet).
		On(domain.InstanceFeaturesResetType, featuresReset).
		On(domain.InstanceDomainAddedType, instanceDomainAdded).
		On(domain.InstanceDomainRemovedType, instanceDomainRemoved).
		On(domain.InstanceDomainPrimarySetType, instanceDomainPrimarySet).
		OnReset(resetInstances).
		Build()
}

func instanceAdded(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.InstanceAddedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO instances (id, name, created_at, changed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			changed_at = excluded.changed_at`,
		event.AggregateID, payload.Name,
		event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func instanceRemoved(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM instance_domains WHERE instance_id = ?`, event.AggregateID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM features WHERE instance_id = ?`, event.AggregateID,
	); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE instances SET removed = 1, changed_at = ? WHERE id = ?`,
		event.CreatedAt.Unix(), event.AggregateID,
	)
	return err
}

func featuresSet(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.Features
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	doc, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO features (instance_id, features, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (instance_id) DO UPDATE SET
			features = excluded.features,
			updated_at = excluded.updated_at`,
		event.AggregateID, string(doc), event.CreatedAt.Unix(),
	)
	return err
}

func featuresReset(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM features WHERE instance_id = ?`, event.AggregateID,
	)
	return err
}

func instanceDomainAdded(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.InstanceDomainPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO instance_domains (domain, instance_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (domain) DO UPDATE SET
			instance_id = excluded.instance_id`,
		payload.Domain, event.AggregateID, event.CreatedAt.Unix(),
	)
	return err
}

func instanceDomainRemoved(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.InstanceDomainPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM instance_domains WHERE domain = ?`, payload.Domain,
	)
	return err
}

func instanceDomainPrimarySet(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.InstanceDomainPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE instance_domains SET is_primary = 0 WHERE instance_id = ?`,
		event.AggregateID,
	); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE instance_domains SET is_primary = 1 WHERE domain = ?`,
		payload.Domain,
	)
	return err
}

func resetInstances(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		`DELETE FROM instance_domains`,
		`DELETE FROM features`,
		`DELETE FROM instances`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
