// Package oidc implements the OAuth/OIDC surface: authorization requests
// (plain or JAR per RFC 9101), PKCE, and the token lifecycle.
package oidc

import (
	"net/url"
	"strings"
	"time"
)

// AuthRequestParams are the OAuth authorization parameters, collected from
// query parameters, a JAR, or both (JAR wins field by field).
type AuthRequestParams struct {
	ClientID            string   `json:"clientId"`
	RedirectURI         string   `json:"redirectUri"`
	ResponseType        string   `json:"responseType"`
	Scopes              []string `json:"scopes,omitempty"`
	State               string   `json:"state,omitempty"`
	Nonce               string   `json:"nonce,omitempty"`
	CodeChallenge       string   `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string   `json:"codeChallengeMethod,omitempty"`
	Prompt              []string `json:"prompt,omitempty"`
}

// ParamsFromQuery collects authorization parameters from query values.
func ParamsFromQuery(values url.Values) *AuthRequestParams {
	return &AuthRequestParams{
		ClientID:            values.Get("client_id"),
		RedirectURI:         values.Get("redirect_uri"),
		ResponseType:        values.Get("response_type"),
		Scopes:              splitSpace(values.Get("scope")),
		State:               values.Get("state"),
		Nonce:               values.Get("nonce"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: values.Get("code_challenge_method"),
		Prompt:              splitSpace(values.Get("prompt")),
	}
}

// Merge overlays JAR-sourced parameters onto query parameters. JAR fields
// override; unset JAR fields keep the query value. JWT-only claims never
// reach the result because the JAR extractor does not map them.
func (p *AuthRequestParams) Merge(jar *AuthRequestParams) *AuthRequestParams {
	merged := *p
	if jar.ClientID != "" {
		merged.ClientID = jar.ClientID
	}
	if jar.RedirectURI != "" {
		merged.RedirectURI = jar.RedirectURI
	}
	if jar.ResponseType != "" {
		merged.ResponseType = jar.ResponseType
	}
	if len(jar.Scopes) > 0 {
		merged.Scopes = jar.Scopes
	}
	if jar.State != "" {
		merged.State = jar.State
	}
	if jar.Nonce != "" {
		merged.Nonce = jar.Nonce
	}
	if jar.CodeChallenge != "" {
		merged.CodeChallenge = jar.CodeChallenge
	}
	if jar.CodeChallengeMethod != "" {
		merged.CodeChallengeMethod = jar.CodeChallengeMethod
	}
	if len(jar.Prompt) > 0 {
		merged.Prompt = jar.Prompt
	}
	return &merged
}

func splitSpace(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// AuthRequest is a pending authorization request awaiting user consent.
type AuthRequest struct {
	ID         string             `json:"id"`
	InstanceID string             `json:"instanceId"`
	Params     *AuthRequestParams `json:"params"`
	UserID     string             `json:"userId,omitempty"`
	SessionID  string             `json:"sessionId,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	ExpiresAt  time.Time          `json:"expiresAt"`
}

// Expired reports whether the request can no longer be exchanged.
func (r *AuthRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
