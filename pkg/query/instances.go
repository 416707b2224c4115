package query

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/domain"
)

// InstanceIDByHost routes a request host to its instance through the
// globally unique instance domain table. Removed instances do not route.
func (q *Queries) InstanceIDByHost(ctx context.Context, host string) (string, error) {
	var instanceID string
	err := q.db.QueryRowContext(ctx, `
		SELECT d.instance_id FROM instance_domains d
		JOIN instances i ON i.id = d.instance_id AND i.removed = 0
		WHERE d.domain = ?`, host,
	).Scan(&instanceID)
	if err == sql.ErrNoRows {
		return "", domain.NotFound("QUERY-InstanceNotFound", "no instance for host")
	}
	if err != nil {
		return "", domain.Internal("QUERY-Instance", "resolve instance by host").WithParent(err)
	}
	return instanceID, nil
}

// InstanceExists reports whether the instance is known and not removed.
func (q *Queries) InstanceExists(ctx context.Context, instanceID string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM instances WHERE id = ? AND removed = 0`, instanceID,
	).Scan(&count)
	if err != nil {
		return false, domain.Internal("QUERY-Instance", "check instance").WithParent(err)
	}
	return count > 0, nil
}
