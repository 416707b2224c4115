package query

import (
	"context"
	"database/sql"

	"github.com/goccy/go-json"

	"github.com/identra/identra/pkg/domain"
)

// systemFeaturesKey is the row holding system-wide feature defaults.
const systemFeaturesKey = "SYSTEM"

// GetInstanceFeatures returns the instance's feature flags. A missing row
// resolves to all-disabled, never to an error.
func (q *Queries) GetInstanceFeatures(ctx context.Context, instanceID string) (*domain.Features, error) {
	return q.featuresByKey(ctx, instanceID)
}

// GetSystemFeatures returns the system-level feature defaults.
func (q *Queries) GetSystemFeatures(ctx context.Context) (*domain.Features, error) {
	return q.featuresByKey(ctx, systemFeaturesKey)
}

func (q *Queries) featuresByKey(ctx context.Context, key string) (*domain.Features, error) {
	var doc string
	err := q.db.QueryRowContext(ctx,
		`SELECT features FROM features WHERE instance_id = ?`, key,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return &domain.Features{}, nil
	}
	if err != nil {
		return nil, domain.Internal("QUERY-Features", "get features").WithParent(err)
	}

	features := &domain.Features{}
	if err := json.Unmarshal([]byte(doc), features); err != nil {
		return nil, domain.Internal("QUERY-Features", "decode features").WithParent(err)
	}
	return features, nil
}

// IsInstanceFeatureEnabled checks one named flag. Unknown names report
// disabled. The lookup accepts the historical wire name of
// ImprovedPerformance as well.
func (q *Queries) IsInstanceFeatureEnabled(ctx context.Context, instanceID, name string) (bool, error) {
	features, err := q.GetInstanceFeatures(ctx, instanceID)
	if err != nil {
		return false, err
	}
	switch name {
	case "loginDefaultOrg":
		return features.LoginDefaultOrg, nil
	case "userSchema":
		return features.UserSchema, nil
	case "tokenExchange":
		return features.TokenExchange, nil
	case "improvedPerformance", "improveredPerformance":
		return features.ImprovedPerformance, nil
	case "debugOidcParentError":
		return features.DebugOIDCParentError, nil
	case "permissionCheckV2":
		return features.PermissionCheckV2, nil
	case "consoleUseV2UserApi":
		return features.ConsoleUseV2UserAPI, nil
	case "disableUserTokenEvent":
		return features.DisableUserTokenEvent, nil
	case "enableBackChannelLogout":
		return features.EnableBackChannelLogout, nil
	default:
		return false, nil
	}
}
