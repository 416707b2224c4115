package domain

import (
	"testing"
	"time"
)

func replayToken(t *testing.T, source *Token) *Token {
	t.Helper()
	replayed := NewToken(source.ID(), source.InstanceID(), source.ResourceOwner())
	for _, event := range source.UncommittedEvents() {
		if err := replayed.Reduce(event); err != nil {
			t.Fatalf("reduce %s: %v", event.EventType, err)
		}
	}
	return replayed
}

func newRefreshToken(t *testing.T, now time.Time) *Token {
	t.Helper()
	token := NewToken("tok-1", "inst-1", "org-1")
	idle := now.Add(24 * time.Hour)
	err := token.Add("e1", "alice", TokenAddedPayload{
		UserID:        "user-1",
		ApplicationID: "client-1",
		TokenType:     TokenTypeRefresh,
		Scopes:        []string{"openid"},
		ExpiresAt:     now.Add(90 * 24 * time.Hour),
		IdleExpiresAt: &idle,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	return token
}

func TestTokenAddValidation(t *testing.T) {
	token := NewToken("tok-1", "inst-1", "org-1")
	if err := token.Add("e1", "alice", TokenAddedPayload{ExpiresAt: time.Now()}); CodeOf(err) != "TOKEN-UserEmpty" {
		t.Fatalf("missing user: %v", err)
	}
	if err := token.Add("e1", "alice", TokenAddedPayload{UserID: "user-1"}); CodeOf(err) != "TOKEN-ExpiryMissing" {
		t.Fatalf("missing expiry: %v", err)
	}
}

func TestRefreshBumpsIdleExpiry(t *testing.T) {
	now := time.Now()
	token := newRefreshToken(t, now)

	later := now.Add(12 * time.Hour)
	if err := token.Refresh("e2", "alice", later, 24*time.Hour); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	want := later.Add(24 * time.Hour)
	if token.IdleExpiresAt == nil || !token.IdleExpiresAt.Equal(want) {
		t.Fatalf("idle expiry = %v, want %v", token.IdleExpiresAt, want)
	}
	if got := replayToken(t, token); got.IdleExpiresAt == nil || !got.IdleExpiresAt.Equal(want) {
		t.Fatalf("replayed idle expiry = %v, want %v", got.IdleExpiresAt, want)
	}
}

func TestIdleExpiryInvalidatesRefreshToken(t *testing.T) {
	now := time.Now()
	token := newRefreshToken(t, now)

	// past the 24h idle window but well inside the absolute window
	idle := now.Add(25 * time.Hour)
	if err := token.CheckValid(idle); CodeOf(err) != CodeTokenExpired {
		t.Fatalf("idle expired token: %v", err)
	}
	if err := token.Refresh("e2", "alice", idle, 24*time.Hour); CodeOf(err) != CodeTokenExpired {
		t.Fatalf("refresh after idle expiry: %v", err)
	}
}

func TestAccessTokenIgnoresIdleExpiry(t *testing.T) {
	now := time.Now()
	token := NewToken("tok-2", "inst-1", "org-1")
	idle := now.Add(-time.Hour)
	err := token.Add("e1", "alice", TokenAddedPayload{
		UserID:        "user-1",
		TokenType:     TokenTypeAccess,
		ExpiresAt:     now.Add(time.Hour),
		IdleExpiresAt: &idle,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if token.IsExpired(now) {
		t.Fatal("access tokens have no idle expiry")
	}
	if err := token.Refresh("e2", "alice", now, time.Hour); CodeOf(err) != "TOKEN-NotRefresh" {
		t.Fatalf("refresh access token: %v", err)
	}
}

func TestRevoke(t *testing.T) {
	token := newRefreshToken(t, time.Now())

	if err := token.Revoke("e2", "alice", "logout"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := token.CheckValid(time.Now()); CodeOf(err) != CodeTokenInvalid {
		t.Fatalf("revoked token: %v", err)
	}

	before := len(token.UncommittedEvents())
	if err := token.Revoke("e3", "alice", "again"); err != nil {
		t.Fatalf("re-revoke: %v", err)
	}
	if len(token.UncommittedEvents()) != before {
		t.Fatal("re-revoke emitted an event")
	}
}
