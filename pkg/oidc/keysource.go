package oidc

import (
	"context"
	"sync"
	"time"

	"gocloud.dev/secrets"
	// Backend drivers are opt-in; import in application code:
	// _ "gocloud.dev/secrets/awskms"
	// _ "gocloud.dev/secrets/gcpkms"
	// _ "gocloud.dev/secrets/localsecrets"

	"github.com/identra/identra/pkg/domain"
)

// KeySource supplies the key material used to sign issued tokens and to
// verify request objects.
type KeySource interface {
	Key(ctx context.Context) ([]byte, error)
	Close() error
}

// StaticKeySource wraps a fixed key, for tests and single-node setups.
type StaticKeySource struct {
	key []byte
}

// NewStaticKeySource creates a key source over the given material.
func NewStaticKeySource(key []byte) *StaticKeySource {
	return &StaticKeySource{key: key}
}

func (s *StaticKeySource) Key(context.Context) ([]byte, error) {
	if len(s.key) == 0 {
		return nil, domain.Internal("OIDC-KeyEmpty", "no signing key configured")
	}
	return s.key, nil
}

func (s *StaticKeySource) Close() error { return nil }

// SecretKeySource resolves the key through a Go Cloud secrets keeper, so
// the backing store can be KMS, Vault, or a local keeper in development.
// The decrypted key is cached for a short time.
type SecretKeySource struct {
	keeper     *secrets.Keeper
	ciphertext []byte
	cacheTTL   time.Duration

	mu          sync.RWMutex
	cachedKey   []byte
	cacheExpiry time.Time
}

// NewSecretKeySource opens a keeper by URL and prepares to decrypt the
// given ciphertext on demand.
func NewSecretKeySource(ctx context.Context, keeperURL string, ciphertext []byte) (*SecretKeySource, error) {
	keeper, err := secrets.OpenKeeper(ctx, keeperURL)
	if err != nil {
		return nil, domain.Unavailable("OIDC-Keeper", "open secrets keeper").WithParent(err)
	}
	return &SecretKeySource{
		keeper:     keeper,
		ciphertext: ciphertext,
		cacheTTL:   5 * time.Minute,
	}, nil
}

func (s *SecretKeySource) Key(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	if s.cachedKey != nil && time.Now().Before(s.cacheExpiry) {
		key := s.cachedKey
		s.mu.RUnlock()
		return key, nil
	}
	s.mu.RUnlock()

	plaintext, err := s.keeper.Decrypt(ctx, s.ciphertext)
	if err != nil {
		return nil, domain.Unavailable("OIDC-KeyDecrypt", "decrypt signing key").WithParent(err)
	}

	s.mu.Lock()
	s.cachedKey = plaintext
	s.cacheExpiry = time.Now().Add(s.cacheTTL)
	s.mu.Unlock()
	return plaintext, nil
}

func (s *SecretKeySource) Close() error {
	s.mu.Lock()
	s.cachedKey = nil
	s.mu.Unlock()
	return s.keeper.Close()
}
