package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/multitenancy"
)

// handleAuthorize starts an authorization request from query parameters
// or a JAR request object. The response carries the pending request; a
// login UI links a session and then hits the callback endpoint.
func (rt *Router) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := multitenancy.InstanceID(ctx)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}

	verifier := rt.provider.Verifier(r.URL.Query().Get("client_id"), rt.jarVerifierKey())
	params, err := verifier.ResolveParams(r.URL.Query())
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}

	request, err := rt.provider.CreateAuthRequest(ctx, instanceID, params)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

func (rt *Router) jarVerifierKey() any {
	if len(rt.config.jarKey) == 0 {
		return nil
	}
	return rt.config.jarKey
}

type callbackRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// handleAuthorizeCallback binds an authenticated session to the pending
// request, mints the authorization code, and redirects back to the
// client.
func (rt *Router) handleAuthorizeCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := multitenancy.InstanceID(ctx)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	requestID := chi.URLParam(r, "requestID")

	var body callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, rt.logger, domain.InvalidArgument("API-Body", "invalid request body").WithParent(err))
		return
	}

	request, err := rt.provider.AuthRequestByID(ctx, instanceID, requestID)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	if err := rt.provider.LinkSession(ctx, instanceID, requestID, body.UserID, body.SessionID); err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	code, err := rt.provider.IssueCode(ctx, instanceID, requestID)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}

	redirect, err := url.Parse(request.Params.RedirectURI)
	if err != nil {
		WriteError(w, rt.logger, domain.Internal("API-Redirect", "registered redirect is unparsable").WithParent(err))
		return
	}
	values := redirect.Query()
	values.Set("code", code)
	if request.Params.State != "" {
		values.Set("state", request.Params.State)
	}
	redirect.RawQuery = values.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// handleToken serves the code and refresh grants.
func (rt *Router) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := multitenancy.InstanceID(ctx)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		WriteError(w, rt.logger, domain.InvalidArgument("API-Form", "invalid form body").WithParent(err))
		return
	}

	clientID := r.PostFormValue("client_id")
	switch grantType := r.PostFormValue("grant_type"); grantType {
	case "authorization_code":
		pair, err := rt.provider.ExchangeCode(ctx, instanceID,
			r.PostFormValue("code"), clientID, r.PostFormValue("code_verifier"))
		if err != nil {
			WriteError(w, rt.logger, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, pair)
	case "refresh_token":
		pair, err := rt.provider.Refresh(ctx, instanceID,
			r.PostFormValue("refresh_token"), clientID)
		if err != nil {
			WriteError(w, rt.logger, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, pair)
	default:
		WriteError(w, rt.logger,
			domain.InvalidArgument("OIDC-GrantType", "unsupported grant_type").WithDetail("grant_type", grantType))
	}
}

// handleRevoke revokes a token by id. Unknown tokens answer 200 so the
// endpoint does not leak which ids exist.
func (rt *Router) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := multitenancy.InstanceID(ctx)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		WriteError(w, rt.logger, domain.InvalidArgument("API-Form", "invalid form body").WithParent(err))
		return
	}

	err = rt.provider.Revoke(ctx, instanceID, r.PostFormValue("token"), "revocation request")
	if err != nil && !errors.Is(err, domain.ErrAggregateNotFound) {
		WriteError(w, rt.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (rt *Router) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	issuer := rt.provider.Issuer()
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/oauth/v2/authorize",
		"token_endpoint":                        issuer + "/oauth/v2/token",
		"revocation_endpoint":                   issuer + "/oauth/v2/revoke",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256", "plain"},
		"request_parameter_supported":           true,
		"request_uri_parameter_supported":       false,
		"token_endpoint_auth_methods_supported": []string{"none"},
	})
}
