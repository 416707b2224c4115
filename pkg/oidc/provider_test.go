package oidc

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/cache"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/idgen"
	"github.com/identra/identra/pkg/query"
	"github.com/identra/identra/pkg/store"
	"github.com/identra/identra/pkg/store/sqlite"
)

const testInstance = "inst-1"

func setupProvider(t *testing.T) (*Provider, *sqlite.EventStore) {
	t.Helper()
	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { es.Close() })

	requests := cache.New(cache.WithSweepInterval(time.Hour))
	t.Cleanup(requests.Close)

	now := time.Now().Unix()
	_, err = es.DB().Exec(`
		INSERT INTO applications (instance_id, project_id, app_id, name, client_id, redirect_uris, created_at, changed_at)
		VALUES (?, 'proj-1', 'app-1', 'Web', 'client-1', '["https://app.example.com/cb"]', ?, ?)`,
		testInstance, now, now)
	if err != nil {
		t.Fatalf("seed application: %v", err)
	}

	queries := query.New(es.DB(), zerolog.Nop())
	keys := NewStaticKeySource([]byte("0123456789abcdef0123456789abcdef"))
	provider := NewProvider(es, queries, requests, keys, zerolog.Nop(),
		WithIssuer("https://idp.example.com"))
	return provider, es
}

func createSession(t *testing.T, es *sqlite.EventStore, sessionID, userID string) {
	t.Helper()
	sessions := store.NewRepository(es, domain.SessionAggregateType,
		func(id, instanceID string) *domain.Session { return domain.NewSession(id, instanceID, "") },
		func(s *domain.Session, event *domain.Event) error { return s.Reduce(event) })

	session := domain.NewSession(sessionID, testInstance, "org-1")
	if err := session.Create(idgen.NewEventID(), "tester", userID, nil, "password"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := sessions.Save(context.Background(), session); err != nil {
		t.Fatalf("save session: %v", err)
	}
}

func authorize(t *testing.T, p *Provider, es *sqlite.EventStore, scopes []string) (code, verifier string) {
	t.Helper()
	ctx := context.Background()

	verifier = "correct-horse-battery-staple-0123456789"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	request, err := p.CreateAuthRequest(ctx, testInstance, &AuthRequestParams{
		ClientID:            "client-1",
		RedirectURI:         "https://app.example.com/cb",
		ResponseType:        "code",
		Scopes:              scopes,
		CodeChallenge:       challenge,
		CodeChallengeMethod: CodeChallengeS256,
	})
	if err != nil {
		t.Fatalf("create auth request: %v", err)
	}

	createSession(t, es, "sess-1", "user-1")
	if err := p.LinkSession(ctx, testInstance, request.ID, "user-1", "sess-1"); err != nil {
		t.Fatalf("link session: %v", err)
	}

	code, err = p.IssueCode(ctx, testInstance, request.ID)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}
	return code, verifier
}

func TestAuthorizationCodeFlow(t *testing.T) {
	ctx := context.Background()
	p, es := setupProvider(t)
	code, verifier := authorize(t, p, es, []string{"openid", "offline_access"})

	pair, err := p.ExchangeCode(ctx, testInstance, code, "client-1", verifier)
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if pair.AccessToken == "" || pair.TokenType != "Bearer" {
		t.Fatalf("pair = %+v", pair)
	}
	if pair.RefreshToken == "" {
		t.Fatal("offline_access should yield a refresh token")
	}
	if pair.IDToken == "" {
		t.Fatal("openid should yield an id token")
	}

	claims, err := p.VerifyAccessToken(ctx, testInstance, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if claims.Subject != "user-1" || claims.InstanceID != testInstance {
		t.Fatalf("claims = %+v", claims)
	}

	t.Run("CodeIsSingleUse", func(t *testing.T) {
		_, err := p.ExchangeCode(ctx, testInstance, code, "client-1", verifier)
		if err == nil {
			t.Fatal("code redeemed twice")
		}
	})
}

func TestExchangeCodeRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("WrongClient", func(t *testing.T) {
		p, es := setupProvider(t)
		code, verifier := authorize(t, p, es, []string{"openid"})
		_, err := p.ExchangeCode(ctx, testInstance, code, "client-other", verifier)
		if domain.CodeOf(err) != domain.CodeInvalidCredentials {
			t.Fatalf("err = %v, want invalid credentials", err)
		}
	})

	t.Run("WrongVerifier", func(t *testing.T) {
		p, es := setupProvider(t)
		code, _ := authorize(t, p, es, []string{"openid"})
		_, err := p.ExchangeCode(ctx, testInstance, code, "client-1", "nope")
		if err == nil {
			t.Fatal("bad verifier accepted")
		}
	})

	t.Run("UnregisteredRedirect", func(t *testing.T) {
		p, _ := setupProvider(t)
		_, err := p.CreateAuthRequest(ctx, testInstance, &AuthRequestParams{
			ClientID:     "client-1",
			RedirectURI:  "https://evil.example.com/cb",
			ResponseType: "code",
		})
		if err == nil {
			t.Fatal("unregistered redirect accepted")
		}
	})

	t.Run("UnknownClient", func(t *testing.T) {
		p, _ := setupProvider(t)
		_, err := p.CreateAuthRequest(ctx, testInstance, &AuthRequestParams{
			ClientID:     "ghost",
			RedirectURI:  "https://app.example.com/cb",
			ResponseType: "code",
		})
		var derr *domain.Error
		if !errors.As(err, &derr) || derr.Kind != domain.KindNotFound {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

func TestRefreshGrant(t *testing.T) {
	ctx := context.Background()
	p, es := setupProvider(t)
	code, verifier := authorize(t, p, es, []string{"openid", "offline_access"})

	pair, err := p.ExchangeCode(ctx, testInstance, code, "client-1", verifier)
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}

	refreshed, err := p.Refresh(ctx, testInstance, pair.RefreshToken, "client-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.AccessToken == pair.AccessToken {
		t.Fatal("refresh should mint a fresh access token")
	}
	if refreshed.RefreshToken != pair.RefreshToken {
		t.Fatal("refresh token id should be stable across refreshes")
	}

	t.Run("WrongClient", func(t *testing.T) {
		_, err := p.Refresh(ctx, testInstance, pair.RefreshToken, "client-other")
		if domain.CodeOf(err) != domain.CodeTokenInvalid {
			t.Fatalf("err = %v, want token invalid", err)
		}
	})

	t.Run("RevokedRefreshTokenRejected", func(t *testing.T) {
		if err := p.Revoke(ctx, testInstance, pair.RefreshToken, "logout"); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		_, err := p.Refresh(ctx, testInstance, pair.RefreshToken, "client-1")
		if domain.CodeOf(err) != domain.CodeTokenInvalid {
			t.Fatalf("err = %v, want token invalid", err)
		}
	})
}

func TestVerifyAccessTokenRevocation(t *testing.T) {
	ctx := context.Background()
	p, es := setupProvider(t)
	code, verifier := authorize(t, p, es, []string{"openid"})

	pair, err := p.ExchangeCode(ctx, testInstance, code, "client-1", verifier)
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}

	if err := p.Revoke(ctx, testInstance, pair.AccessTokenID, "admin"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err = p.VerifyAccessToken(ctx, testInstance, pair.AccessToken)
	if domain.CodeOf(err) != domain.CodeTokenInvalid {
		t.Fatalf("err = %v, want token invalid", err)
	}

	t.Run("RevokeIdempotent", func(t *testing.T) {
		if err := p.Revoke(ctx, testInstance, pair.AccessTokenID, "again"); err != nil {
			t.Fatalf("second revoke: %v", err)
		}
	})
}

func TestVerifyAccessTokenCrossInstance(t *testing.T) {
	ctx := context.Background()
	p, es := setupProvider(t)
	code, verifier := authorize(t, p, es, []string{"openid"})

	pair, err := p.ExchangeCode(ctx, testInstance, code, "client-1", verifier)
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}

	_, err = p.VerifyAccessToken(ctx, "inst-other", pair.AccessToken)
	if domain.CodeOf(err) != domain.CodeTokenInvalid {
		t.Fatalf("err = %v, want token invalid", err)
	}
}
