package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"

	"github.com/identra/identra/pkg/domain"
)

const applicationSelect = `SELECT app_id, project_id, instance_id, name, client_id,
	redirect_uris, created_at, changed_at FROM applications`

func scanApplication(row rowScanner) (*Application, error) {
	var (
		app                  Application
		redirectURIs         string
		createdAt, changedAt int64
	)
	err := row.Scan(&app.AppID, &app.ProjectID, &app.InstanceID, &app.Name,
		&app.ClientID, &redirectURIs, &createdAt, &changedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(redirectURIs), &app.RedirectURIs); err != nil {
		return nil, err
	}
	app.Details.CreatedAt = time.Unix(createdAt, 0).UTC()
	app.Details.ChangedAt = time.Unix(changedAt, 0).UTC()
	return &app, nil
}

// GetApplicationByID returns one application within the instance.
func (q *Queries) GetApplicationByID(ctx context.Context, instanceID, appID string) (*Application, error) {
	row := q.db.QueryRowContext(ctx,
		applicationSelect+` WHERE instance_id = ? AND app_id = ?`, instanceID, appID)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("QUERY-AppNotFound", "application not found")
	}
	if err != nil {
		return nil, domain.Internal("QUERY-App", "get application").WithParent(err)
	}
	return app, nil
}

// GetApplicationByClientID resolves an OAuth client within the instance.
func (q *Queries) GetApplicationByClientID(ctx context.Context, instanceID, clientID string) (*Application, error) {
	row := q.db.QueryRowContext(ctx,
		applicationSelect+` WHERE instance_id = ? AND client_id = ?`, instanceID, clientID)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("QUERY-AppNotFound", "unknown client")
	}
	if err != nil {
		return nil, domain.Internal("QUERY-App", "get application by client id").WithParent(err)
	}
	return app, nil
}

// GetApplicationsByProjectID lists all applications of one project.
func (q *Queries) GetApplicationsByProjectID(ctx context.Context, instanceID, projectID string) ([]*Application, error) {
	rows, err := q.db.QueryContext(ctx,
		applicationSelect+` WHERE instance_id = ? AND project_id = ? ORDER BY name`,
		instanceID, projectID)
	if err != nil {
		return nil, domain.Internal("QUERY-App", "list applications").WithParent(err)
	}
	defer rows.Close()

	var apps []*Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, domain.Internal("QUERY-App", "scan application").WithParent(err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
