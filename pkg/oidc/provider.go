package oidc

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/cache"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/idgen"
	"github.com/identra/identra/pkg/multitenancy"
	"github.com/identra/identra/pkg/query"
	"github.com/identra/identra/pkg/store"
)

type providerConfig struct {
	issuer               string
	accessTokenLifetime  time.Duration
	refreshTokenLifetime time.Duration
	refreshIdleLifetime  time.Duration
	authRequestTTL       time.Duration
	codeTTL              time.Duration
	requireSignedJAR     bool
}

// ProviderOption configures a Provider.
type ProviderOption func(*providerConfig)

// WithIssuer sets the issuer URL stamped into tokens and expected as JAR
// audience.
func WithIssuer(issuer string) ProviderOption {
	return func(c *providerConfig) { c.issuer = issuer }
}

// WithAccessTokenLifetime sets how long access and ID tokens live.
func WithAccessTokenLifetime(d time.Duration) ProviderOption {
	return func(c *providerConfig) { c.accessTokenLifetime = d }
}

// WithRefreshTokenLifetimes sets absolute and idle refresh expiry.
func WithRefreshTokenLifetimes(absolute, idle time.Duration) ProviderOption {
	return func(c *providerConfig) {
		c.refreshTokenLifetime = absolute
		c.refreshIdleLifetime = idle
	}
}

// WithAuthRequestTTL bounds how long an authorization request may stay
// pending.
func WithAuthRequestTTL(d time.Duration) ProviderOption {
	return func(c *providerConfig) { c.authRequestTTL = d }
}

// WithRequireSignedJAR rejects unsigned request objects.
func WithRequireSignedJAR(require bool) ProviderOption {
	return func(c *providerConfig) { c.requireSignedJAR = require }
}

// TokenPair is the outcome of a successful code or refresh exchange.
type TokenPair struct {
	AccessToken    string `json:"access_token"`
	TokenType      string `json:"token_type"`
	ExpiresIn      int64  `json:"expires_in"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	IDToken        string `json:"id_token,omitempty"`
	AccessTokenID  string `json:"-"`
	RefreshTokenID string `json:"-"`
}

// AccessTokenClaims are the claims carried by issued access tokens.
type AccessTokenClaims struct {
	Scopes      []string `json:"scope,omitempty"`
	AuthMethods []string `json:"amr,omitempty"`
	InstanceID  string   `json:"urn:identra:instance"`
	jwt.RegisteredClaims
}

// Provider drives authorization requests and the token lifecycle.
type Provider struct {
	config   providerConfig
	queries  *query.Queries
	tokens   *store.BaseRepository[*domain.Token]
	sessions *store.BaseRepository[*domain.Session]
	requests *cache.Cache
	keys     KeySource
	logger   zerolog.Logger
}

// NewProvider wires the OIDC surface over the event store and read layer.
func NewProvider(es store.EventStore, queries *query.Queries, requests *cache.Cache, keys KeySource, logger zerolog.Logger, opts ...ProviderOption) *Provider {
	config := providerConfig{
		issuer:               "https://identra.localhost",
		accessTokenLifetime:  time.Hour,
		refreshTokenLifetime: 90 * 24 * time.Hour,
		refreshIdleLifetime:  30 * 24 * time.Hour,
		authRequestTTL:       10 * time.Minute,
		codeTTL:              5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&config)
	}

	return &Provider{
		config:  config,
		queries: queries,
		tokens: store.NewRepository(es, domain.TokenAggregateType,
			func(id, instanceID string) *domain.Token { return domain.NewToken(id, instanceID, "") },
			func(t *domain.Token, event *domain.Event) error { return t.Reduce(event) }),
		sessions: store.NewRepository(es, domain.SessionAggregateType,
			func(id, instanceID string) *domain.Session { return domain.NewSession(id, instanceID, "") },
			func(s *domain.Session, event *domain.Event) error { return s.Reduce(event) }),
		requests: requests,
		keys:     keys,
		logger:   logger.With().Str("component", "oidc").Logger(),
	}
}

// Issuer returns the configured issuer URL.
func (p *Provider) Issuer() string { return p.config.issuer }

// Verifier returns a JAR verifier bound to one client.
func (p *Provider) Verifier(clientID string, key any) *JARVerifier {
	return &JARVerifier{
		ExpectedClientID: clientID,
		ExpectedAudience: p.config.issuer,
		RequireSignature: p.config.requireSignedJAR,
		Key:              key,
	}
}

func authRequestKey(instanceID, id string) string { return "authreq:" + instanceID + ":" + id }
func codeKey(instanceID, code string) string      { return "code:" + instanceID + ":" + code }

// CreateAuthRequest validates the client and records a pending
// authorization request.
func (p *Provider) CreateAuthRequest(ctx context.Context, instanceID string, params *AuthRequestParams) (*AuthRequest, error) {
	if params.ResponseType != "code" {
		return nil, domain.InvalidArgument("OIDC-ResponseType", "only the code response type is supported")
	}

	app, err := p.queries.GetApplicationByClientID(ctx, instanceID, params.ClientID)
	if err != nil {
		return nil, err
	}
	if !containsString(app.RedirectURIs, params.RedirectURI) {
		return nil, domain.InvalidArgument("OIDC-RedirectURI", "redirect_uri is not registered for this client")
	}

	now := domain.Now()
	request := &AuthRequest{
		ID:         idgen.New(),
		InstanceID: instanceID,
		Params:     params,
		CreatedAt:  now,
		ExpiresAt:  now.Add(p.config.authRequestTTL),
	}
	p.requests.Set(authRequestKey(instanceID, request.ID), request, p.config.authRequestTTL)
	return request, nil
}

// AuthRequestByID returns a pending request; expired ones read as absent.
func (p *Provider) AuthRequestByID(ctx context.Context, instanceID, id string) (*AuthRequest, error) {
	cached, ok := p.requests.Get(authRequestKey(instanceID, id))
	if !ok {
		return nil, domain.NotFound("OIDC-AuthRequestNotFound", "authorization request not found")
	}
	request := cached.(*AuthRequest)
	if request.Expired(domain.Now()) {
		return nil, domain.NotFound("OIDC-AuthRequestNotFound", "authorization request expired")
	}
	return request, nil
}

// LinkSession binds an authenticated session to the pending request.
func (p *Provider) LinkSession(ctx context.Context, instanceID, requestID, userID, sessionID string) error {
	request, err := p.AuthRequestByID(ctx, instanceID, requestID)
	if err != nil {
		return err
	}

	session, err := p.sessions.Load(ctx, instanceID, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrAggregateNotFound) {
			return domain.NotFound("SESSION-NotFound", "session does not exist")
		}
		return err
	}
	if session.UserID != userID || !session.IsActive(domain.Now()) {
		return domain.Unauthenticated(domain.CodeSessionExpired, "session is not usable")
	}

	request.UserID = userID
	request.SessionID = sessionID
	p.requests.Set(authRequestKey(instanceID, requestID), request,
		time.Until(request.ExpiresAt))
	return nil
}

// IssueCode mints a single-use authorization code for an authenticated
// request.
func (p *Provider) IssueCode(ctx context.Context, instanceID, requestID string) (string, error) {
	request, err := p.AuthRequestByID(ctx, instanceID, requestID)
	if err != nil {
		return "", err
	}
	if request.UserID == "" {
		return "", domain.FailedPrecondition("OIDC-NotAuthenticated", "authorization request has no authenticated user")
	}

	code := idgen.New()
	p.requests.Set(codeKey(instanceID, code), request, p.config.codeTTL)
	p.requests.Delete(authRequestKey(instanceID, requestID))
	return code, nil
}

// ExchangeCode redeems an authorization code for tokens. Codes are single
// use; PKCE is verified when the request registered a challenge.
func (p *Provider) ExchangeCode(ctx context.Context, instanceID, code, clientID, codeVerifier string) (*TokenPair, error) {
	cached, ok := p.requests.Get(codeKey(instanceID, code))
	if !ok {
		return nil, domain.Unauthenticated(domain.CodeInvalidCredentials, "authorization code is invalid")
	}
	p.requests.Delete(codeKey(instanceID, code))

	request := cached.(*AuthRequest)
	if request.Params.ClientID != clientID {
		return nil, domain.Unauthenticated(domain.CodeInvalidCredentials, "authorization code was issued to another client")
	}
	if err := VerifyCodeChallenge(codeVerifier, request.Params.CodeChallenge, request.Params.CodeChallengeMethod); err != nil {
		return nil, err
	}

	session, err := p.sessions.Load(ctx, instanceID, request.SessionID)
	if err != nil {
		return nil, domain.Unauthenticated(domain.CodeSessionExpired, "session backing the code is gone")
	}
	return p.issueTokens(ctx, instanceID, request.UserID, clientID, request.Params, session.AuthMethods)
}

func (p *Provider) issueTokens(ctx context.Context, instanceID, userID, clientID string, params *AuthRequestParams, authMethods []string) (*TokenPair, error) {
	now := domain.Now()
	editor := multitenancy.Editor(ctx)

	accessID := idgen.New()
	access, err := p.tokens.LoadOrNew(ctx, instanceID, accessID)
	if err != nil {
		return nil, err
	}
	err = access.Add(idgen.NewEventID(), editor, domain.TokenAddedPayload{
		UserID:        userID,
		ApplicationID: clientID,
		TokenType:     domain.TokenTypeAccess,
		Scopes:        params.Scopes,
		Audiences:     []string{clientID},
		ExpiresAt:     now.Add(p.config.accessTokenLifetime),
		AuthMethods:   authMethods,
	})
	if err != nil {
		return nil, err
	}
	if err := p.tokens.Save(ctx, access); err != nil {
		return nil, err
	}

	pair := &TokenPair{
		TokenType:     "Bearer",
		ExpiresIn:     int64(p.config.accessTokenLifetime.Seconds()),
		AccessTokenID: accessID,
	}

	pair.AccessToken, err = p.signAccessToken(ctx, accessID, instanceID, userID, clientID, params.Scopes, authMethods, now)
	if err != nil {
		return nil, err
	}

	if containsString(params.Scopes, "offline_access") {
		refreshID := idgen.New()
		refresh, err := p.tokens.LoadOrNew(ctx, instanceID, refreshID)
		if err != nil {
			return nil, err
		}
		idle := now.Add(p.config.refreshIdleLifetime)
		err = refresh.Add(idgen.NewEventID(), editor, domain.TokenAddedPayload{
			UserID:        userID,
			ApplicationID: clientID,
			TokenType:     domain.TokenTypeRefresh,
			Scopes:        params.Scopes,
			Audiences:     []string{clientID},
			ExpiresAt:     now.Add(p.config.refreshTokenLifetime),
			IdleExpiresAt: &idle,
			AuthMethods:   authMethods,
		})
		if err != nil {
			return nil, err
		}
		if err := p.tokens.Save(ctx, refresh); err != nil {
			return nil, err
		}
		pair.RefreshToken = refreshID
		pair.RefreshTokenID = refreshID
	}

	if containsString(params.Scopes, "openid") {
		pair.IDToken, err = p.signIDToken(ctx, instanceID, userID, clientID, params.Nonce, now)
		if err != nil {
			return nil, err
		}
	}
	return pair, nil
}

// Refresh redeems a refresh token for a new access token, bumping the idle
// expiry of the refresh token.
func (p *Provider) Refresh(ctx context.Context, instanceID, refreshTokenID, clientID string) (*TokenPair, error) {
	now := domain.Now()
	editor := multitenancy.Editor(ctx)

	token, err := p.tokens.Load(ctx, instanceID, refreshTokenID)
	if err != nil {
		if errors.Is(err, domain.ErrAggregateNotFound) {
			return nil, domain.Unauthenticated(domain.CodeTokenInvalid, "refresh token is unknown")
		}
		return nil, err
	}
	if token.ApplicationID != clientID {
		return nil, domain.Unauthenticated(domain.CodeTokenInvalid, "refresh token was issued to another client")
	}
	if err := token.Refresh(idgen.NewEventID(), editor, now, p.config.refreshIdleLifetime); err != nil {
		return nil, err
	}
	if err := p.tokens.Save(ctx, token); err != nil {
		return nil, err
	}

	params := &AuthRequestParams{ClientID: clientID, Scopes: token.Scopes}
	pair, err := p.issueTokens(ctx, instanceID, token.UserID, clientID, params, token.AuthMethods)
	if err != nil {
		return nil, err
	}
	pair.RefreshToken = refreshTokenID
	pair.RefreshTokenID = refreshTokenID
	return pair, nil
}

// Revoke invalidates a token by id. Revoking twice is a no-op.
func (p *Provider) Revoke(ctx context.Context, instanceID, tokenID, reason string) error {
	token, err := p.tokens.Load(ctx, instanceID, tokenID)
	if err != nil {
		if errors.Is(err, domain.ErrAggregateNotFound) {
			return domain.NotFound("TOKEN-NotFound", "token does not exist")
		}
		return err
	}
	if err := token.Revoke(idgen.NewEventID(), multitenancy.Editor(ctx), reason); err != nil {
		return err
	}
	return p.tokens.Save(ctx, token)
}

// VerifyAccessToken parses and validates an issued access token, including
// the revocation state of its backing aggregate.
func (p *Provider) VerifyAccessToken(ctx context.Context, instanceID, raw string) (*AccessTokenClaims, error) {
	key, err := p.keys.Key(ctx)
	if err != nil {
		return nil, err
	}

	claims := &AccessTokenClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.config.issuer),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, domain.Unauthenticated(domain.CodeTokenExpired, "token expired").WithParent(err)
	case err != nil:
		return nil, domain.Unauthenticated(domain.CodeTokenInvalid, "token is invalid").WithParent(err)
	}
	if claims.InstanceID != instanceID {
		return nil, domain.Unauthenticated(domain.CodeTokenInvalid, "token belongs to another instance")
	}

	token, err := p.tokens.Load(ctx, instanceID, claims.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAggregateNotFound) {
			return nil, domain.Unauthenticated(domain.CodeTokenInvalid, "token is unknown")
		}
		return nil, err
	}
	if err := token.CheckValid(domain.Now()); err != nil {
		return nil, err
	}
	return claims, nil
}

func (p *Provider) signAccessToken(ctx context.Context, tokenID, instanceID, userID, clientID string, scopes, authMethods []string, now time.Time) (string, error) {
	key, err := p.keys.Key(ctx)
	if err != nil {
		return "", err
	}

	claims := &AccessTokenClaims{
		Scopes:      scopes,
		AuthMethods: authMethods,
		InstanceID:  instanceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    p.config.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.config.accessTokenLifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", domain.Internal("OIDC-Sign", "sign access token").WithParent(err)
	}
	return signed, nil
}

func (p *Provider) signIDToken(ctx context.Context, instanceID, userID, clientID, nonce string, now time.Time) (string, error) {
	key, err := p.keys.Key(ctx)
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"iss": p.config.issuer,
		"sub": userID,
		"aud": clientID,
		"iat": now.Unix(),
		"exp": now.Add(p.config.accessTokenLifetime).Unix(),

		"urn:identra:instance": instanceID,
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", domain.Internal("OIDC-Sign", "sign id token").WithParent(err)
	}
	return signed, nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
