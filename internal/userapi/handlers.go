package userapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"saasid/internal/orchestrator"
	"saasid/pkg/apperr"
	"saasid/pkg/problems"
	"saasid/pkg/token"
)

// registerTenantAdmin provisions the tenant identity bundle and its
// admin user in one workflow.
func (a *App) registerTenantAdmin(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.problem(w, apperr.Wrap(err, apperr.InvalidArgument, "decode registration request"))
		return
	}
	rec, err := a.lifecycle.RegisterTenantAdmin(r.Context(), req)
	if err != nil {
		a.problem(w, err)
		return
	}
	writeJSON(w, rec, http.StatusCreated)
}

// deprovisionTenant tears the tenant's identity infrastructure down.
func (a *App) deprovisionTenant(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.DeprovisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.problem(w, apperr.Wrap(err, apperr.InvalidArgument, "decode deprovision request"))
		return
	}
	if err := a.lifecycle.DeprovisionTenant(r.Context(), req); err != nil {
		a.problem(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted", "tenantId": req.TenantID}, http.StatusOK)
}

// getUserPool reports whether a user id exists in any tenant. The
// lookup runs in system context through the secondary index; no tenant
// scoping applies because no caller identity exists yet at signup time.
func (a *App) getUserPool(w http.ResponseWriter, r *http.Request) {
	_, ok, err := a.store.LookupByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.problem(w, err)
		return
	}
	writeJSON(w, map[string]bool{"isExist": ok}, http.StatusOK)
}

// listUsers enumerates the caller's authentication domain. The domain
// id comes from the bearer token's issuer; the directory call runs
// under credentials brokered for that same token, so the caller can
// only ever list their own tenant.
func (a *App) listUsers(w http.ResponseWriter, r *http.Request) {
	domainID, err := token.DomainIDFromRequest(r)
	if err != nil {
		a.problem(w, err)
		return
	}
	creds, err := a.broker.FromRequest(r.Context(), r)
	if err != nil {
		a.problem(w, err)
		return
	}
	users, err := a.directory.ListIdentities(r.Context(), domainID, &creds)
	if err != nil {
		a.problem(w, err)
		return
	}
	writeJSON(w, users, http.StatusOK)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.AuthenticationRequired:
		return http.StatusUnauthorized
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.IdentityCreationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func slugFor(kind apperr.Kind) string {
	switch kind {
	case apperr.InvalidArgument:
		return "invalid-request"
	case apperr.AuthenticationRequired:
		return "authentication-required"
	case apperr.NotFound:
		return "not-found"
	case apperr.Conflict:
		return "workflow-in-flight"
	case apperr.IdentityCreationFailed:
		return "identity-rejected"
	default:
		return "upstream-failure"
	}
}

// problem writes an RFC 7807 response for err.
func (a *App) problem(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		a.log.Errorw("request failed", "kind", kind, "err", err)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   problems.Type(slugFor(kind)),
		"title":  string(kind),
		"status": status,
		"detail": apperr.Message(err),
	})
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
