package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/identra/identra/pkg/domain"
)

var (
	orgColID            = Col("orgs", "id")
	orgColInstanceID    = Col("orgs", "instance_id")
	orgColName          = Col("orgs", "name")
	orgColPrimaryDomain = Col("orgs", "primary_domain")
	orgColState         = Col("orgs", "state")
	orgColCreatedAt     = Col("orgs", "created_at")
)

// OrgSearchFilters narrows searchOrgs; zero values are ignored.
type OrgSearchFilters struct {
	Name          string
	NameContains  string
	State         domain.OrgState
	PrimaryDomain string
}

const orgSelect = `SELECT id, instance_id, name, primary_domain, state, sequence, created_at, changed_at FROM orgs`

func scanOrg(row rowScanner) (*Org, error) {
	var (
		org                  Org
		createdAt, changedAt int64
	)
	err := row.Scan(&org.ID, &org.InstanceID, &org.Name, &org.PrimaryDomain,
		&org.State, &org.Details.Sequence, &createdAt, &changedAt)
	if err != nil {
		return nil, err
	}
	org.Details.CreatedAt = time.Unix(createdAt, 0).UTC()
	org.Details.ChangedAt = time.Unix(changedAt, 0).UTC()
	org.Details.ResourceOwner = org.ID
	return &org, nil
}

// GetOrgByID returns one org within the instance.
func (q *Queries) GetOrgByID(ctx context.Context, instanceID, orgID string) (*Org, error) {
	row := q.db.QueryRowContext(ctx,
		orgSelect+` WHERE instance_id = ? AND id = ?`, instanceID, orgID)
	org, err := scanOrg(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("QUERY-OrgNotFound", "org not found")
	}
	if err != nil {
		return nil, domain.Internal("QUERY-Org", "get org").WithParent(err)
	}
	return org, nil
}

// GetOrgByDomainGlobal resolves an org by a verified domain. Lookup is
// instance-scoped like everything else; "global" means across all orgs of
// the instance, not across instances.
func (q *Queries) GetOrgByDomainGlobal(ctx context.Context, instanceID, orgDomain string) (*Org, error) {
	row := q.db.QueryRowContext(ctx, orgSelect+`
		WHERE instance_id = ? AND id = (
			SELECT org_id FROM org_domains
			WHERE instance_id = ? AND domain = ? AND is_verified = 1
		)`, instanceID, instanceID, orgDomain)
	org, err := scanOrg(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("QUERY-OrgNotFound", "no org for domain")
	}
	if err != nil {
		return nil, domain.Internal("QUERY-Org", "get org by domain").WithParent(err)
	}
	return org, nil
}

// SearchOrgs lists orgs matching the filters with clamped pagination.
func (q *Queries) SearchOrgs(ctx context.Context, instanceID string, filters OrgSearchFilters, page Pagination) ([]*Org, *ListDetails, error) {
	page = page.Normalize()

	where := &whereBuilder{}
	where.equals(orgColInstanceID, instanceID)
	if filters.Name != "" {
		where.text(TextFilter{Column: orgColName, Value: filters.Name})
	}
	if filters.NameContains != "" {
		where.text(TextFilter{Column: orgColName, Value: filters.NameContains, Method: TextContainsIgnoreCase})
	}
	if filters.State != domain.OrgStateUnspecified {
		where.equals(orgColState, int32(filters.State))
	}
	if filters.PrimaryDomain != "" {
		where.equals(orgColPrimaryDomain, filters.PrimaryDomain)
	}

	var total int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orgs`+where.clause(), where.args...,
	).Scan(&total)
	if err != nil {
		return nil, nil, domain.Internal("QUERY-Org", "count orgs").WithParent(err)
	}

	sortBy := page.SortBy
	if sortBy.Name == "" {
		sortBy = orgColCreatedAt
	}
	args := append(append([]any{}, where.args...), page.Limit, page.Offset)
	rows, err := q.db.QueryContext(ctx,
		orgSelect+where.clause()+
			` ORDER BY `+sortBy.OrderBy()+` `+string(page.SortOrder)+
			` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, nil, domain.Internal("QUERY-Org", "search orgs").WithParent(err)
	}
	defer rows.Close()

	var orgs []*Org
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, nil, domain.Internal("QUERY-Org", "scan org").WithParent(err)
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, domain.Internal("QUERY-Org", "iterate orgs").WithParent(err)
	}
	return orgs, &ListDetails{TotalCount: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// GetOrgDomainsByID lists all domain rows of one org.
func (q *Queries) GetOrgDomainsByID(ctx context.Context, instanceID, orgID string) ([]*OrgDomain, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT org_id, domain, is_verified, is_primary, validation_type, created_at, changed_at
		FROM org_domains
		WHERE instance_id = ? AND org_id = ?
		ORDER BY domain`, instanceID, orgID)
	if err != nil {
		return nil, domain.Internal("QUERY-OrgDomain", "list org domains").WithParent(err)
	}
	defer rows.Close()

	var domains []*OrgDomain
	for rows.Next() {
		d, err := scanOrgDomain(rows)
		if err != nil {
			return nil, domain.Internal("QUERY-OrgDomain", "scan org domain").WithParent(err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

func scanOrgDomain(row rowScanner) (*OrgDomain, error) {
	var (
		d                    OrgDomain
		createdAt, changedAt int64
	)
	err := row.Scan(&d.OrgID, &d.Domain, &d.IsVerified, &d.IsPrimary,
		&d.ValidationType, &createdAt, &changedAt)
	if err != nil {
		return nil, err
	}
	d.Details.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.Details.ChangedAt = time.Unix(changedAt, 0).UTC()
	d.Details.ResourceOwner = d.OrgID
	return &d, nil
}

// IsDomainAvailable reports whether no org of the instance has claimed the
// domain yet.
func (q *Queries) IsDomainAvailable(ctx context.Context, instanceID, orgDomain string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM org_domains WHERE instance_id = ? AND domain = ?`,
		instanceID, orgDomain,
	).Scan(&count)
	if err != nil {
		return false, domain.Internal("QUERY-OrgDomain", "check domain availability").WithParent(err)
	}
	return count == 0, nil
}

// GetPrimaryDomainByOrgID returns the org's primary domain, "" when unset.
func (q *Queries) GetPrimaryDomainByOrgID(ctx context.Context, instanceID, orgID string) (string, error) {
	var primary string
	err := q.db.QueryRowContext(ctx, `
		SELECT domain FROM org_domains
		WHERE instance_id = ? AND org_id = ? AND is_primary = 1`,
		instanceID, orgID,
	).Scan(&primary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", domain.Internal("QUERY-OrgDomain", "get primary domain").WithParent(err)
	}
	return primary, nil
}

// GetOrgWithDomains returns the org and all of its domain rows.
func (q *Queries) GetOrgWithDomains(ctx context.Context, instanceID, orgID string) (*OrgWithDomains, error) {
	org, err := q.GetOrgByID(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}
	domains, err := q.GetOrgDomainsByID(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}
	return &OrgWithDomains{Org: org, Domains: domains}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
