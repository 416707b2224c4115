package authz

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/cache"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/policy"
	"github.com/identra/identra/pkg/query"
	"github.com/identra/identra/pkg/store/sqlite"
)

func setupChecker(t *testing.T) (*Checker, *sql.DB) {
	t.Helper()
	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { es.Close() })

	policyCache := cache.New(cache.WithSweepInterval(time.Hour))
	t.Cleanup(policyCache.Close)

	queries := query.New(es.DB(), zerolog.Nop())
	resolver := policy.NewResolver(queries, policyCache, zerolog.Nop())
	return NewChecker(queries, resolver, zerolog.Nop()), es.DB()
}

func seedUser(t *testing.T, db *sql.DB, userID string, state domain.UserState) {
	t.Helper()
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO users (instance_id, resource_owner, id, username, user_type, state,
			email, email_verified, phone, phone_verified, first_name, last_name,
			sequence, created_at, changed_at)
		VALUES ('inst-1', 'org-1', ?, ?, ?, ?, '', 0, '', 0, '', '', 1, ?, ?)`,
		userID, userID, int32(domain.UserTypeHuman), int32(state), now, now)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func seedSession(t *testing.T, db *sql.DB, sessionID, userID, authMethods string, expiresAt *time.Time) {
	t.Helper()
	now := time.Now().Unix()
	var expiry any
	if expiresAt != nil {
		expiry = expiresAt.Unix()
	}
	_, err := db.Exec(`
		INSERT INTO sessions (instance_id, resource_owner, id, user_id, state, auth_methods, expires_at, created_at, changed_at)
		VALUES ('inst-1', 'org-1', ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, userID, int32(domain.SessionStateActive), authMethods, expiry, now, now)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func seedGrant(t *testing.T, db *sql.DB, grantID, userID, projectID, roles string, state domain.GrantState) {
	t.Helper()
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO user_grants (instance_id, resource_owner, id, user_id, project_id,
			project_grant_id, role_keys, state, created_at, changed_at)
		VALUES ('inst-1', 'org-1', ?, ?, ?, '', ?, ?, ?, ?)`,
		grantID, userID, projectID, roles, int32(state), now, now)
	if err != nil {
		t.Fatalf("seed grant: %v", err)
	}
}

func seedLoginPolicy(t *testing.T, db *sql.DB, ownerID, doc string) {
	t.Helper()
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO login_policies (instance_id, owner_id, policy, created_at, changed_at)
		VALUES ('inst-1', ?, ?, ?, ?)`, ownerID, doc, now, now)
	if err != nil {
		t.Fatalf("seed login policy: %v", err)
	}
}

func TestCheckGrant(t *testing.T) {
	ctx := context.Background()
	checker, db := setupChecker(t)

	seedGrant(t, db, "g1", "user-1", "proj-1", `["admin","viewer"]`, domain.GrantStateActive)
	seedGrant(t, db, "g2", "user-2", "proj-2", `["viewer"]`, domain.GrantStateInactive)

	t.Run("HasRole", func(t *testing.T) {
		check, err := checker.CheckGrant(ctx, "inst-1", "user-1", "proj-1", "admin")
		if err != nil {
			t.Fatalf("check grant: %v", err)
		}
		if !check.Exists || !check.HasRole || len(check.Roles) != 2 {
			t.Fatalf("check = %+v", check)
		}
	})

	t.Run("MissingRole", func(t *testing.T) {
		_, err := checker.CheckGrant(ctx, "inst-1", "user-1", "proj-1", "owner")
		if domain.CodeOf(err) != domain.CodeUnauthorized {
			t.Fatalf("err = %v, want unauthorized", err)
		}
		if domain.KindOf(err) != domain.KindPermissionDenied {
			t.Fatalf("kind = %v, want permission denied", domain.KindOf(err))
		}
	})

	t.Run("EmptyRoleChecksExistence", func(t *testing.T) {
		check, err := checker.CheckGrant(ctx, "inst-1", "user-1", "proj-1", "")
		if err != nil {
			t.Fatalf("check grant: %v", err)
		}
		if !check.HasRole {
			t.Fatal("existence check should mirror HasRole")
		}
	})

	t.Run("NoGrant", func(t *testing.T) {
		_, err := checker.CheckGrant(ctx, "inst-1", "user-1", "proj-other", "")
		if domain.CodeOf(err) != domain.CodeUnauthorized {
			t.Fatalf("err = %v, want unauthorized", err)
		}
	})

	t.Run("InactiveGrantDoesNotAuthorize", func(t *testing.T) {
		_, err := checker.CheckGrant(ctx, "inst-1", "user-2", "proj-2", "viewer")
		if domain.CodeOf(err) != domain.CodeUnauthorized {
			t.Fatalf("err = %v, want unauthorized", err)
		}
	})
}

func TestCheckUser(t *testing.T) {
	ctx := context.Background()
	checker, db := setupChecker(t)

	seedUser(t, db, "active", domain.UserStateActive)
	seedUser(t, db, "inactive", domain.UserStateInactive)
	seedUser(t, db, "locked", domain.UserStateLocked)
	seedUser(t, db, "suspended", domain.UserStateSuspended)
	seedUser(t, db, "initial", domain.UserStateInitial)

	t.Run("Active", func(t *testing.T) {
		user, err := checker.CheckUser(ctx, "inst-1", "active")
		if err != nil {
			t.Fatalf("check user: %v", err)
		}
		if user.ID != "active" {
			t.Fatalf("user = %+v", user)
		}
	})

	for id, code := range map[string]string{
		"inactive":  domain.CodeUserInactive,
		"locked":    domain.CodeUserLocked,
		"suspended": domain.CodeUserSuspended,
		"initial":   domain.CodeUserInactive,
	} {
		t.Run(id, func(t *testing.T) {
			_, err := checker.CheckUser(ctx, "inst-1", id)
			if domain.CodeOf(err) != code {
				t.Fatalf("err = %v, want %s", err, code)
			}
		})
	}

	t.Run("Unknown", func(t *testing.T) {
		_, err := checker.CheckUser(ctx, "inst-1", "ghost")
		if domain.KindOf(err) != domain.KindNotFound {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

func TestCheckSession(t *testing.T) {
	ctx := context.Background()
	checker, db := setupChecker(t)
	now := time.Now()

	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	seedSession(t, db, "sess-live", "user-1", `["password"]`, &future)
	seedSession(t, db, "sess-expired", "user-1", `["password"]`, &past)
	seedSession(t, db, "sess-open-ended", "user-1", `["password"]`, nil)

	t.Run("Live", func(t *testing.T) {
		session, err := checker.CheckSession(ctx, "inst-1", "sess-live", "user-1")
		if err != nil {
			t.Fatalf("check session: %v", err)
		}
		if session.UserID != "user-1" {
			t.Fatalf("session = %+v", session)
		}
	})

	t.Run("NoExpiry", func(t *testing.T) {
		if _, err := checker.CheckSession(ctx, "inst-1", "sess-open-ended", ""); err != nil {
			t.Fatalf("check session: %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		_, err := checker.CheckSession(ctx, "inst-1", "sess-expired", "user-1")
		if domain.CodeOf(err) != domain.CodeSessionExpired {
			t.Fatalf("err = %v, want session expired", err)
		}
	})

	t.Run("WrongUser", func(t *testing.T) {
		_, err := checker.CheckSession(ctx, "inst-1", "sess-live", "user-2")
		if domain.CodeOf(err) != domain.CodeSessionExpired {
			t.Fatalf("err = %v, want session expired", err)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := checker.CheckSession(ctx, "inst-1", "ghost", "")
		if domain.KindOf(err) != domain.KindNotFound {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

func TestCheckMFA(t *testing.T) {
	ctx := context.Background()

	session := func(db *sql.DB, t *testing.T, id, methods string) *query.Session {
		seedSession(t, db, id, "user-1", methods, nil)
		queries := query.New(db, zerolog.Nop())
		s, err := queries.GetSessionByID(ctx, "inst-1", id)
		if err != nil {
			t.Fatalf("load session: %v", err)
		}
		return s
	}

	t.Run("NoPolicyNoRequirement", func(t *testing.T) {
		checker, db := setupChecker(t)
		if err := checker.CheckMFA(ctx, session(db, t, "s1", `["password"]`)); err != nil {
			t.Fatalf("check mfa: %v", err)
		}
	})

	t.Run("ForceMFARejectsPasswordOnly", func(t *testing.T) {
		checker, db := setupChecker(t)
		seedLoginPolicy(t, db, "inst-1", `{"forceMfa":true}`)
		err := checker.CheckMFA(ctx, session(db, t, "s1", `["password"]`))
		if domain.CodeOf(err) != "AUTHZ-MFARequired" {
			t.Fatalf("err = %v, want mfa required", err)
		}
		if domain.KindOf(err) != domain.KindUnauthenticated {
			t.Fatalf("kind = %v, want unauthenticated", domain.KindOf(err))
		}
	})

	t.Run("ForceMFASatisfiedByTOTP", func(t *testing.T) {
		checker, db := setupChecker(t)
		seedLoginPolicy(t, db, "inst-1", `{"forceMfa":true}`)
		if err := checker.CheckMFA(ctx, session(db, t, "s1", `["password","totp"]`)); err != nil {
			t.Fatalf("check mfa: %v", err)
		}
	})

	t.Run("ForceMFASatisfiedByPasskey", func(t *testing.T) {
		checker, db := setupChecker(t)
		seedLoginPolicy(t, db, "inst-1", `{"forceMfa":true}`)
		if err := checker.CheckMFA(ctx, session(db, t, "s1", `["passkey"]`)); err != nil {
			t.Fatalf("check mfa: %v", err)
		}
	})

	t.Run("LocalOnlyExemptsIDPLogin", func(t *testing.T) {
		checker, db := setupChecker(t)
		seedLoginPolicy(t, db, "inst-1", `{"forceMfaLocalOnly":true}`)
		if err := checker.CheckMFA(ctx, session(db, t, "s1", `["idp"]`)); err != nil {
			t.Fatalf("check mfa: %v", err)
		}
	})

	t.Run("LocalOnlyStillBindsLocalLogin", func(t *testing.T) {
		checker, db := setupChecker(t)
		seedLoginPolicy(t, db, "inst-1", `{"forceMfaLocalOnly":true}`)
		err := checker.CheckMFA(ctx, session(db, t, "s1", `["password"]`))
		if domain.CodeOf(err) != "AUTHZ-MFARequired" {
			t.Fatalf("err = %v, want mfa required", err)
		}
	})

	t.Run("OrgPolicyWins", func(t *testing.T) {
		checker, db := setupChecker(t)
		seedLoginPolicy(t, db, "inst-1", `{"forceMfa":true}`)
		seedLoginPolicy(t, db, "org-1", `{"forceMfa":false}`)
		if err := checker.CheckMFA(ctx, session(db, t, "s1", `["password"]`)); err != nil {
			t.Fatalf("org-level policy should win: %v", err)
		}
	})
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	checker, db := setupChecker(t)

	seedUser(t, db, "user-1", domain.UserStateActive)
	seedUser(t, db, "user-2", domain.UserStateLocked)
	seedSession(t, db, "sess-1", "user-1", `["password"]`, nil)
	seedSession(t, db, "sess-2", "user-2", `["password"]`, nil)
	seedGrant(t, db, "g1", "user-1", "proj-1", `["admin"]`, domain.GrantStateActive)
	seedGrant(t, db, "g2", "user-2", "proj-1", `["admin"]`, domain.GrantStateActive)

	t.Run("FullChain", func(t *testing.T) {
		check, err := checker.Authorize(ctx, AccessRequest{
			InstanceID: "inst-1",
			SessionID:  "sess-1",
			UserID:     "user-1",
			ProjectID:  "proj-1",
			Role:       "admin",
		})
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if !check.HasRole {
			t.Fatalf("check = %+v", check)
		}
	})

	t.Run("LockedUserDeniedDespiteGrant", func(t *testing.T) {
		_, err := checker.Authorize(ctx, AccessRequest{
			InstanceID: "inst-1",
			SessionID:  "sess-2",
			UserID:     "user-2",
			ProjectID:  "proj-1",
			Role:       "admin",
		})
		if domain.CodeOf(err) != domain.CodeUserLocked {
			t.Fatalf("err = %v, want user locked", err)
		}
	})
}

func TestRequireFeature(t *testing.T) {
	ctx := context.Background()
	checker, db := setupChecker(t)

	_, err := db.Exec(`
		INSERT INTO features (instance_id, features, updated_at)
		VALUES ('inst-1', '{"tokenExchange":true}', ?)`, time.Now().Unix())
	if err != nil {
		t.Fatalf("seed features: %v", err)
	}

	if err := checker.RequireFeature(ctx, "inst-1", "tokenExchange"); err != nil {
		t.Fatalf("require feature: %v", err)
	}
	err = checker.RequireFeature(ctx, "inst-1", "userSchema")
	if domain.CodeOf(err) != domain.CodeFeatureDisabled {
		t.Fatalf("err = %v, want feature disabled", err)
	}
}
