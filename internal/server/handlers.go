package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/orgctl/orgctl/internal/auth/authn"
	"github.com/orgctl/orgctl/internal/auth/authz"
	"github.com/orgctl/orgctl/internal/ecosystem"
	"github.com/orgctl/orgctl/internal/ocerrors"
)

// requestSubject is the resolved actor of a request: the authenticated user,
// or another user when an admin acts on their behalf.
type requestSubject struct {
	userID   string
	userOrgs []string
}

type handlers struct {
	resolver *ecosystem.Resolver
	log      logrus.FieldLogger
}

// subject resolves the request's target user. Acting on another user via the
// "user" query parameter requires the admin role; the denial result is
// returned to the caller in the 403 body.
func (h *handlers) subject(w http.ResponseWriter, r *http.Request) (requestSubject, bool) {
	enriched, ok := enrichedFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errUnauthorized)
		return requestSubject{}, false
	}

	var (
		selfID   string
		userOrgs []string
		orgCtx   *authn.OrganizationContext
	)
	if enriched.IsOrganizationScoped {
		orgCtx = enriched.Organization
		selfID = orgCtx.UserID
		userOrgs = []string{orgCtx.OrganizationID}
	} else if sub, ok := enriched.Claims["sub"].(string); ok {
		selfID = sub
	}
	if selfID == "" {
		writeError(w, http.StatusUnauthorized, errUnauthorized)
		return requestSubject{}, false
	}

	target := r.URL.Query().Get("user")
	if target == "" || target == selfID {
		return requestSubject{userID: selfID, userOrgs: userOrgs}, true
	}

	if orgCtx == nil {
		writeError(w, http.StatusForbidden, "acting on another user requires an organization-scoped token")
		return requestSubject{}, false
	}
	roles := authz.ValidateRoles(orgCtx, []string{authz.RoleAdmin})
	if !roles.Valid {
		writeJSON(w, http.StatusForbidden, roles)
		return requestSubject{}, false
	}
	// Admin acting on another user: that user's token organizations are
	// unknown here, so resolution falls back to the catalog scan.
	return requestSubject{userID: target}, true
}

func (h *handlers) listApps(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	apps, err := h.resolver.GetUserEcosystemApps(r.Context(), subject.userID, subject.userOrgs)
	if err != nil {
		h.writeResolverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *handlers) grantAccess(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "appID")
	if err := h.resolver.GrantUserAppAccess(r.Context(), subject.userID, appID, subject.userOrgs); err != nil {
		h.writeResolverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"granted": true})
}

func (h *handlers) revokeAccess(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "appID")
	if err := h.resolver.RevokeUserAppAccess(r.Context(), subject.userID, appID); err != nil {
		h.writeResolverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (h *handlers) checkAccess(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "appID")
	hasAccess, err := h.resolver.CheckUserAppAccess(r.Context(), subject.userID, appID)
	if err != nil {
		h.writeResolverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasAccess": hasAccess})
}

func (h *handlers) accessStats(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	stats, err := h.resolver.GetUserAccessStats(r.Context(), subject.userID, subject.userOrgs)
	if err != nil {
		h.writeResolverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// me echoes the authenticated context so the console can render the session.
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	enriched, ok := enrichedFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	type meResponse struct {
		IsOrganizationScoped bool                       `json:"isOrganizationScoped"`
		ValidatedAt          time.Time                  `json:"validatedAt"`
		Organization         *authn.OrganizationContext `json:"organization,omitempty"`
		TokenNearExpiry      bool                       `json:"tokenNearExpiry"`
	}
	resp := meResponse{
		IsOrganizationScoped: enriched.IsOrganizationScoped,
		ValidatedAt:          enriched.ValidatedAt,
		Organization:         enriched.Organization,
	}
	if enriched.Organization != nil {
		resp.TokenNearExpiry = authz.IsTokenNearExpiry(enriched.Organization, 0)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) writeResolverError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ocerrors.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, "application not found")
	case errors.Is(err, ocerrors.ErrNotOrganizationMember):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ocerrors.ErrNoOrganizations):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
