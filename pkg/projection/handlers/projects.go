package handlers

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/store"
)

// ProjectProjectionName identifies the project read model.
const ProjectProjectionName = "projects"

// NewProjectProjection materializes the projects and applications tables.
func NewProjectProjection() store.Projection {
	return projection.NewBuilder(ProjectProjectionName).
		On(domain.ProjectAddedType, projectAdded).
		On(domain.ProjectDeactivatedType, projectStateChange(domain.OrgStateInactive)).
		On(domain.ProjectReactivatedType, projectStateChange(domain.OrgStateActive)).
		On(domain.ProjectRemovedType, projectRemoved).
		On(domain.ApplicationAddedType, applicationAdded).
		On(domain.ApplicationRemovedType, applicationRemoved).
		OnReset(resetProjects).
		Build()
}

func projectAdded(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.ProjectAddedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projects (instance_id, resource_owner, id, name, state, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, id) DO UPDATE SET
			name = excluded.name,
			changed_at = excluded.changed_at`,
		event.InstanceID, event.ResourceOwner, event.AggregateID, payload.Name,
		int32(domain.OrgStateActive), event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func projectStateChange(state domain.OrgState) projection.HandlerFunc {
	return func(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE projects SET state = ?, changed_at = ?
			WHERE instance_id = ? AND id = ?`,
			int32(state), event.CreatedAt.Unix(),
			event.InstanceID, event.AggregateID,
		)
		return err
	}
}

func projectRemoved(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM applications WHERE instance_id = ? AND project_id = ?`,
		event.InstanceID, event.AggregateID,
	); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM projects WHERE instance_id = ? AND id = ?`,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func applicationAdded(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.ApplicationAddedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO applications (instance_id, project_id, app_id, name, client_id,
			redirect_uris, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, app_id) DO UPDATE SET
			name = excluded.name,
			redirect_uris = excluded.redirect_uris,
			changed_at = excluded.changed_at`,
		event.InstanceID, event.AggregateID, payload.AppID, payload.Name,
		payload.ClientID, marshalStrings(payload.RedirectURIs),
		event.CreatedAt.Unix(), event.CreatedAt.Unix(),
	)
	return err
}

func applicationRemoved(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	var payload domain.ApplicationRemovedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM applications WHERE instance_id = ? AND app_id = ?`,
		event.InstanceID, payload.AppID,
	)
	return err
}

func resetProjects(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM applications`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM projects`)
	return err
}
