package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"

	"github.com/identra/identra/pkg/domain"
)

var (
	grantColInstanceID = Col("user_grants", "instance_id")
	grantColUserID     = Col("user_grants", "user_id")
	grantColProjectID  = Col("user_grants", "project_id")
	grantColState      = Col("user_grants", "state")
	grantColCreatedAt  = Col("user_grants", "created_at")
)

// GrantSearchFilters narrows searchUserGrants; zero values are ignored.
type GrantSearchFilters struct {
	UserID    string
	ProjectID string
	State     domain.GrantState
}

const grantSelect = `SELECT id, instance_id, resource_owner, user_id, project_id,
	project_grant_id, role_keys, state, created_at, changed_at FROM user_grants`

func scanGrant(row rowScanner) (*UserGrant, error) {
	var (
		grant                UserGrant
		roleKeys             string
		createdAt, changedAt int64
	)
	err := row.Scan(&grant.ID, &grant.InstanceID, &grant.Details.ResourceOwner,
		&grant.UserID, &grant.ProjectID, &grant.ProjectGrantID,
		&roleKeys, &grant.State, &createdAt, &changedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(roleKeys), &grant.RoleKeys); err != nil {
		return nil, err
	}
	grant.Details.CreatedAt = time.Unix(createdAt, 0).UTC()
	grant.Details.ChangedAt = time.Unix(changedAt, 0).UTC()
	return &grant, nil
}

// GetUserGrantByID returns one grant within the instance.
func (q *Queries) GetUserGrantByID(ctx context.Context, instanceID, grantID string) (*UserGrant, error) {
	row := q.db.QueryRowContext(ctx,
		grantSelect+` WHERE instance_id = ? AND id = ?`, instanceID, grantID)
	grant, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("QUERY-GrantNotFound", "user grant not found")
	}
	if err != nil {
		return nil, domain.Internal("QUERY-Grant", "get user grant").WithParent(err)
	}
	return grant, nil
}

// SearchUserGrants lists grants matching the filters with clamped
// pagination.
func (q *Queries) SearchUserGrants(ctx context.Context, instanceID string, filters GrantSearchFilters, page Pagination) ([]*UserGrant, *ListDetails, error) {
	page = page.Normalize()

	where := &whereBuilder{}
	where.equals(grantColInstanceID, instanceID)
	if filters.UserID != "" {
		where.equals(grantColUserID, filters.UserID)
	}
	if filters.ProjectID != "" {
		where.equals(grantColProjectID, filters.ProjectID)
	}
	if filters.State != domain.GrantStateUnspecified {
		where.equals(grantColState, int32(filters.State))
	}

	var total int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_grants`+where.clause(), where.args...,
	).Scan(&total)
	if err != nil {
		return nil, nil, domain.Internal("QUERY-Grant", "count user grants").WithParent(err)
	}

	sortBy := page.SortBy
	if sortBy.Name == "" {
		sortBy = grantColCreatedAt
	}
	args := append(append([]any{}, where.args...), page.Limit, page.Offset)
	rows, err := q.db.QueryContext(ctx,
		grantSelect+where.clause()+
			` ORDER BY `+sortBy.OrderBy()+` `+string(page.SortOrder)+
			` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, nil, domain.Internal("QUERY-Grant", "search user grants").WithParent(err)
	}
	defer rows.Close()

	var grants []*UserGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, nil, domain.Internal("QUERY-Grant", "scan user grant").WithParent(err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, domain.Internal("QUERY-Grant", "iterate user grants").WithParent(err)
	}
	return grants, &ListDetails{TotalCount: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// GetUserGrantsByUserID lists all grants of one user.
func (q *Queries) GetUserGrantsByUserID(ctx context.Context, instanceID, userID string) ([]*UserGrant, error) {
	grants, _, err := q.SearchUserGrants(ctx, instanceID, GrantSearchFilters{UserID: userID}, Pagination{})
	return grants, err
}

// GetUserGrantsByProjectID lists all grants on one project.
func (q *Queries) GetUserGrantsByProjectID(ctx context.Context, instanceID, projectID string) ([]*UserGrant, error) {
	grants, _, err := q.SearchUserGrants(ctx, instanceID, GrantSearchFilters{ProjectID: projectID}, Pagination{})
	return grants, err
}

// CheckUserGrant is the authorization primitive: does the user hold an
// ACTIVE grant on the project, and does it carry the role. An empty role
// checks existence only, with HasRole mirroring Exists.
func (q *Queries) CheckUserGrant(ctx context.Context, instanceID, userID, projectID, role string) (*GrantCheck, error) {
	row := q.db.QueryRowContext(ctx,
		grantSelect+` WHERE instance_id = ? AND user_id = ? AND project_id = ? AND state = ?`,
		instanceID, userID, projectID, int32(domain.GrantStateActive))
	grant, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return &GrantCheck{Roles: []string{}}, nil
	}
	if err != nil {
		return nil, domain.Internal("QUERY-Grant", "check user grant").WithParent(err)
	}

	check := &GrantCheck{Exists: true, Grant: grant, Roles: grant.RoleKeys}
	if role == "" {
		check.HasRole = true
		return check, nil
	}
	for _, key := range grant.RoleKeys {
		if key == role {
			check.HasRole = true
			break
		}
	}
	return check, nil
}
