package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"

	"github.com/identra/identra/pkg/domain"
)

const sessionSelect = `SELECT id, instance_id, resource_owner, user_id, state,
	auth_methods, expires_at, created_at, changed_at FROM sessions`

func scanSession(row rowScanner) (*Session, error) {
	var (
		session              Session
		authMethods          string
		expiresAt            sql.NullInt64
		createdAt, changedAt int64
	)
	err := row.Scan(&session.ID, &session.InstanceID, &session.Details.ResourceOwner,
		&session.UserID, &session.State, &authMethods, &expiresAt,
		&createdAt, &changedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(authMethods), &session.AuthMethods); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0).UTC()
		session.ExpiresAt = &t
	}
	session.Details.CreatedAt = time.Unix(createdAt, 0).UTC()
	session.Details.ChangedAt = time.Unix(changedAt, 0).UTC()
	return &session, nil
}

// GetSessionByID returns one session within the instance.
func (q *Queries) GetSessionByID(ctx context.Context, instanceID, sessionID string) (*Session, error) {
	row := q.db.QueryRowContext(ctx,
		sessionSelect+` WHERE instance_id = ? AND id = ?`, instanceID, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("QUERY-SessionNotFound", "session not found")
	}
	if err != nil {
		return nil, domain.Internal("QUERY-Session", "get session").WithParent(err)
	}
	return session, nil
}

// GetActiveSessionsByUserID lists the user's sessions that are active and
// not past expiry at the given time.
func (q *Queries) GetActiveSessionsByUserID(ctx context.Context, instanceID, userID string, now time.Time) ([]*Session, error) {
	rows, err := q.db.QueryContext(ctx,
		sessionSelect+` WHERE instance_id = ? AND user_id = ? AND state = ?
		ORDER BY created_at`,
		instanceID, userID, int32(domain.SessionStateActive))
	if err != nil {
		return nil, domain.Internal("QUERY-Session", "list sessions").WithParent(err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, domain.Internal("QUERY-Session", "scan session").WithParent(err)
		}
		if session.IsActive(now) {
			sessions = append(sessions, session)
		}
	}
	return sessions, rows.Err()
}
