package oidc

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/identra/identra/pkg/domain"
)

// PKCE code challenge methods.
const (
	CodeChallengePlain = "plain"
	CodeChallengeS256  = "S256"
)

// VerifyCodeChallenge checks a token-request verifier against the challenge
// recorded at authorization time. An empty challenge means the client did
// not use PKCE and any verifier is rejected.
func VerifyCodeChallenge(verifier, challenge, method string) error {
	if challenge == "" {
		if verifier != "" {
			return domain.InvalidArgument("OIDC-PKCEUnexpected", "no code challenge was registered")
		}
		return nil
	}
	if verifier == "" {
		return domain.InvalidArgument("OIDC-PKCEMissing", "code_verifier is required")
	}

	var derived string
	switch method {
	case CodeChallengeS256, "":
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	case CodeChallengePlain:
		derived = verifier
	default:
		return domain.InvalidArgument("OIDC-PKCEMethod", "unsupported code challenge method")
	}

	if subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) != 1 {
		return domain.InvalidArgument("OIDC-PKCEMismatch", "code_verifier does not match challenge")
	}
	return nil
}
