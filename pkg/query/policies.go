package query

import (
	"context"
	"database/sql"
	"fmt"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/identra/identra/pkg/domain"
)

// GetActiveLoginPolicy resolves the effective login policy: the org policy
// when present, else the instance default, else nil. The winning level
// supplies the whole policy; fields are never mixed across levels.
func (q *Queries) GetActiveLoginPolicy(ctx context.Context, instanceID, orgID string) (*LoginPolicy, error) {
	if orgID != "" {
		policy, err := q.loginPolicyByOwner(ctx, instanceID, orgID)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			policy.IsOrgPolicy = true
			return policy, nil
		}
	}

	policy, err := q.loginPolicyByOwner(ctx, instanceID, instanceID)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		policy.IsDefault = true
	}
	return policy, nil
}

func (q *Queries) loginPolicyByOwner(ctx context.Context, instanceID, ownerID string) (*LoginPolicy, error) {
	var doc string
	err := q.db.QueryRowContext(ctx, `
		SELECT policy FROM login_policies
		WHERE instance_id = ? AND owner_id = ?`,
		instanceID, ownerID,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Internal("QUERY-Policy", "get login policy").WithParent(err)
	}

	policy := &LoginPolicy{OwnerID: ownerID, InstanceID: instanceID}
	if err := json.Unmarshal([]byte(doc), &policy.LoginPolicyDocument); err != nil {
		return nil, domain.Internal("QUERY-Policy", "decode login policy").WithParent(err)
	}
	// The factor lists and linked IdPs are part of the stored document;
	// hydrate empty slices so callers never see null.
	if policy.SecondFactors == nil {
		policy.SecondFactors = []domain.SecondFactorType{}
	}
	if policy.MultiFactors == nil {
		policy.MultiFactors = []domain.MultiFactorType{}
	}
	if policy.IDPIDs == nil {
		policy.IDPIDs = []string{}
	}
	return policy, nil
}

// GetPasswordComplexityPolicy resolves org → instance → built-in default.
func (q *Queries) GetPasswordComplexityPolicy(ctx context.Context, instanceID, orgID string) (*PasswordComplexityPolicy, error) {
	if orgID != "" {
		policy, err := q.complexityPolicyByOwner(ctx, instanceID, orgID)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			return policy, nil
		}
	}

	policy, err := q.complexityPolicyByOwner(ctx, instanceID, instanceID)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		policy.IsDefault = true
		return policy, nil
	}

	return &PasswordComplexityPolicy{
		PasswordComplexityDocument: domain.DefaultPasswordComplexity(),
		IsDefault:                  true,
		IsBuiltIn:                  true,
	}, nil
}

func (q *Queries) complexityPolicyByOwner(ctx context.Context, instanceID, ownerID string) (*PasswordComplexityPolicy, error) {
	policy := &PasswordComplexityPolicy{OwnerID: ownerID}
	err := q.db.QueryRowContext(ctx, `
		SELECT min_length, has_uppercase, has_lowercase, has_number, has_symbol
		FROM password_complexity_policies
		WHERE instance_id = ? AND owner_id = ?`,
		instanceID, ownerID,
	).Scan(&policy.MinLength, &policy.HasUppercase, &policy.HasLowercase,
		&policy.HasNumber, &policy.HasSymbol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Internal("QUERY-Policy", "get complexity policy").WithParent(err)
	}
	return policy, nil
}

// ValidatePassword checks a candidate against a complexity policy and
// reports one error per failed rule.
func ValidatePassword(password string, policy *PasswordComplexityPolicy) *PasswordValidation {
	result := &PasswordValidation{Errors: []string{}}

	if len(password) < policy.MinLength {
		result.Errors = append(result.Errors,
			fmt.Sprintf("password must be at least %d characters", policy.MinLength))
	}

	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if policy.HasUppercase && !hasUpper {
		result.Errors = append(result.Errors, "password must contain an uppercase letter")
	}
	if policy.HasLowercase && !hasLower {
		result.Errors = append(result.Errors, "password must contain a lowercase letter")
	}
	if policy.HasNumber && !hasNumber {
		result.Errors = append(result.Errors, "password must contain a digit")
	}
	if policy.HasSymbol && !hasSymbol {
		result.Errors = append(result.Errors, "password must contain a symbol")
	}

	result.Valid = len(result.Errors) == 0
	return result
}
