package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"

	"github.com/identra/identra/pkg/domain"
)

const tokenSelect = `SELECT id, instance_id, resource_owner, user_id, application_id,
	token_type, scopes, audiences, auth_methods, expires_at, idle_expires_at,
	revoked, created_at, changed_at FROM tokens`

func scanToken(row rowScanner) (*Token, error) {
	var (
		token                      Token
		scopes, audiences, methods string
		expiresAt                  int64
		idleExpiresAt              sql.NullInt64
		createdAt, changedAt       int64
	)
	err := row.Scan(&token.ID, &token.InstanceID, &token.Details.ResourceOwner,
		&token.UserID, &token.ApplicationID, &token.Type,
		&scopes, &audiences, &methods, &expiresAt, &idleExpiresAt,
		&token.Revoked, &createdAt, &changedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scopes), &token.Scopes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(audiences), &token.Audiences); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(methods), &token.AuthMethods); err != nil {
		return nil, err
	}
	token.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	if idleExpiresAt.Valid {
		t := time.Unix(idleExpiresAt.Int64, 0).UTC()
		token.IdleExpiresAt = &t
	}
	token.Details.CreatedAt = time.Unix(createdAt, 0).UTC()
	token.Details.ChangedAt = time.Unix(changedAt, 0).UTC()
	return &token, nil
}

// GetTokenByID returns one token within the instance.
func (q *Queries) GetTokenByID(ctx context.Context, instanceID, tokenID string) (*Token, error) {
	row := q.db.QueryRowContext(ctx,
		tokenSelect+` WHERE instance_id = ? AND id = ?`, instanceID, tokenID)
	token, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("QUERY-TokenNotFound", "token not found")
	}
	if err != nil {
		return nil, domain.Internal("QUERY-Token", "get token").WithParent(err)
	}
	return token, nil
}

// GetTokensByUserID lists all tokens of one user, newest first.
func (q *Queries) GetTokensByUserID(ctx context.Context, instanceID, userID string) ([]*Token, error) {
	rows, err := q.db.QueryContext(ctx,
		tokenSelect+` WHERE instance_id = ? AND user_id = ? ORDER BY created_at DESC`,
		instanceID, userID)
	if err != nil {
		return nil, domain.Internal("QUERY-Token", "list tokens").WithParent(err)
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, domain.Internal("QUERY-Token", "scan token").WithParent(err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
