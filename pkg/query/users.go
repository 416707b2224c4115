package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/identra/identra/pkg/domain"
)

const userSelect = `SELECT id, instance_id, resource_owner, username, user_type, state,
	email, email_verified, phone, phone_verified, first_name, last_name,
	sequence, created_at, changed_at FROM users`

func scanUser(row rowScanner) (*User, error) {
	var (
		user                 User
		createdAt, changedAt int64
	)
	err := row.Scan(&user.ID, &user.InstanceID, &user.Details.ResourceOwner,
		&user.Username, &user.Type, &user.State,
		&user.Email, &user.EmailVerified, &user.Phone, &user.PhoneVerified,
		&user.FirstName, &user.LastName,
		&user.Details.Sequence, &createdAt, &changedAt)
	if err != nil {
		return nil, err
	}
	user.Details.CreatedAt = time.Unix(createdAt, 0).UTC()
	user.Details.ChangedAt = time.Unix(changedAt, 0).UTC()
	return &user, nil
}

// GetUserByID returns one user within the instance.
func (q *Queries) GetUserByID(ctx context.Context, instanceID, userID string) (*User, error) {
	row := q.db.QueryRowContext(ctx,
		userSelect+` WHERE instance_id = ? AND id = ?`, instanceID, userID)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("QUERY-UserNotFound", "user not found")
	}
	if err != nil {
		return nil, domain.Internal("QUERY-User", "get user").WithParent(err)
	}
	return user, nil
}

// GetUserByUsername resolves a user by normalized username.
func (q *Queries) GetUserByUsername(ctx context.Context, instanceID, username string) (*User, error) {
	normalized, err := domain.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	row := q.db.QueryRowContext(ctx,
		userSelect+` WHERE instance_id = ? AND username = ?`, instanceID, normalized)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("QUERY-UserNotFound", "user not found")
	}
	if err != nil {
		return nil, domain.Internal("QUERY-User", "get user by username").WithParent(err)
	}
	return user, nil
}

// SearchUsers lists users of one org (or the whole instance when orgID is
// empty) with clamped pagination.
func (q *Queries) SearchUsers(ctx context.Context, instanceID, orgID string, page Pagination) ([]*User, *ListDetails, error) {
	page = page.Normalize()

	where := &whereBuilder{}
	where.equals(Col("users", "instance_id"), instanceID)
	if orgID != "" {
		where.equals(Col("users", "resource_owner"), orgID)
	}

	var total int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users`+where.clause(), where.args...,
	).Scan(&total)
	if err != nil {
		return nil, nil, domain.Internal("QUERY-User", "count users").WithParent(err)
	}

	args := append(append([]any{}, where.args...), page.Limit, page.Offset)
	rows, err := q.db.QueryContext(ctx,
		userSelect+where.clause()+
			` ORDER BY created_at `+string(page.SortOrder)+
			` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, nil, domain.Internal("QUERY-User", "search users").WithParent(err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, nil, domain.Internal("QUERY-User", "scan user").WithParent(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, domain.Internal("QUERY-User", "iterate users").WithParent(err)
	}
	return users, &ListDetails{TotalCount: total, Offset: page.Offset, Limit: page.Limit}, nil
}
