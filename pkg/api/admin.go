package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/multitenancy"
	"github.com/identra/identra/pkg/query"
)

type listResponse struct {
	Result  any                `json:"result"`
	Details *query.ListDetails `json:"details"`
}

func paginationFromQuery(r *http.Request) query.Pagination {
	var page query.Pagination
	if offset := r.URL.Query().Get("offset"); offset != "" {
		page.Offset, _ = strconv.ParseInt(offset, 10, 64)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		page.Limit, _ = strconv.ParseInt(limit, 10, 64)
	}
	return page
}

func (rt *Router) handleSearchOrgs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := multitenancy.InstanceID(ctx)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}

	filters := query.OrgSearchFilters{
		Name:          r.URL.Query().Get("name"),
		NameContains:  r.URL.Query().Get("name_contains"),
		PrimaryDomain: r.URL.Query().Get("primary_domain"),
	}
	if state := r.URL.Query().Get("state"); state != "" {
		parsed, err := strconv.ParseInt(state, 10, 32)
		if err != nil {
			WriteError(w, rt.logger, domain.InvalidArgument("API-State", "state must be numeric"))
			return
		}
		filters.State = domain.OrgState(parsed)
	}

	orgs, details, err := rt.queries.SearchOrgs(ctx, instanceID, filters, paginationFromQuery(r))
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Result: orgs, Details: details})
}

func (rt *Router) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := multitenancy.InstanceID(ctx)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	org, err := rt.queries.GetOrgByID(ctx, instanceID, chi.URLParam(r, "orgID"))
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (rt *Router) handleGetOrgDomains(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := multitenancy.InstanceID(ctx)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	domains, err := rt.queries.GetOrgDomainsByID(ctx, instanceID, chi.URLParam(r, "orgID"))
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, domains)
}

func (rt *Router) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := multitenancy.InstanceID(ctx)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	users, details, err := rt.queries.SearchUsers(ctx, instanceID,
		r.URL.Query().Get("org_id"), paginationFromQuery(r))
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Result: users, Details: details})
}

func (rt *Router) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := multitenancy.InstanceID(ctx)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	user, err := rt.queries.GetUserByID(ctx, instanceID, chi.URLParam(r, "userID"))
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type grantCheckRequest struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
	Role      string `json:"role,omitempty"`
}

// handleGrantCheck answers the authorization question directly: 200 with
// the grant when authorized, 403 otherwise.
func (rt *Router) handleGrantCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := multitenancy.InstanceID(ctx)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}

	var body grantCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, rt.logger, domain.InvalidArgument("API-Body", "invalid request body").WithParent(err))
		return
	}

	check, err := rt.checker.CheckGrant(ctx, instanceID, body.UserID, body.ProjectID, body.Role)
	if err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

type projectionStatus struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Position int64  `json:"position"`
}

func (rt *Router) handleProjectionList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var statuses []projectionStatus
	for _, name := range rt.engine.Names() {
		state, bookmark, err := rt.engine.Status(ctx, name)
		if err != nil {
			WriteError(w, rt.logger, err)
			return
		}
		statuses = append(statuses, projectionStatus{
			Name:     name,
			Status:   string(state.Status),
			Message:  state.Message,
			Position: bookmark.Position,
		})
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (rt *Router) handleProjectionRebuild(w http.ResponseWriter, r *http.Request) {
	if err := rt.engine.Rebuild(r.Context(), chi.URLParam(r, "name")); err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (rt *Router) handleProjectionRetry(w http.ResponseWriter, r *http.Request) {
	if err := rt.engine.RetryFailed(r.Context(), chi.URLParam(r, "name")); err != nil {
		WriteError(w, rt.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
