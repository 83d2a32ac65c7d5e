package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgctl/orgctl/internal/auth/authn"
	"github.com/orgctl/orgctl/internal/cache"
	"github.com/orgctl/orgctl/internal/config"
	"github.com/orgctl/orgctl/internal/directory"
	"github.com/orgctl/orgctl/internal/ecosystem"
	"github.com/orgctl/orgctl/internal/instrumentation"
	"github.com/orgctl/orgctl/internal/ocerrors"
)

// staticVerifier returns fixed claims for any token, or a fixed error.
type staticVerifier struct {
	claims map[string]interface{}
	err    error
}

func (v staticVerifier) Verify(ctx context.Context, token string) (map[string]interface{}, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

// stubDirectory serves a single first-party app registered in one org.
type stubDirectory struct{}

func (stubDirectory) ListApplications(ctx context.Context) ([]directory.Application, error) {
	return []directory.Application{
		{ID: "app1", Name: "Console", Type: directory.AppTypeSPA},
	}, nil
}

func (stubDirectory) GetApplication(ctx context.Context, id string) (*directory.Application, error) {
	if id != "app1" {
		return nil, ocerrors.ErrResourceNotFound
	}
	return &directory.Application{ID: "app1", Name: "Console", Type: directory.AppTypeSPA}, nil
}

func (stubDirectory) ListOrganizations(ctx context.Context) ([]directory.Organization, error) {
	return []directory.Organization{{ID: "org1", Name: "Acme"}}, nil
}

func (stubDirectory) ListOrganizationApplications(ctx context.Context, orgID string) ([]directory.Application, error) {
	if orgID == "org1" {
		return []directory.Application{{ID: "app1"}}, nil
	}
	return nil, nil
}

func (stubDirectory) ListOrganizationMembers(ctx context.Context, orgID string) ([]directory.UserRef, error) {
	return []directory.UserRef{{ID: "user1"}}, nil
}

func (stubDirectory) ListConsentOrganizations(ctx context.Context, applicationID, userID string) ([]directory.Organization, error) {
	return nil, nil
}

func (stubDirectory) GrantConsentOrganizations(ctx context.Context, applicationID, userID string, organizationIDs []string) error {
	return nil
}

func (stubDirectory) RevokeConsentOrganization(ctx context.Context, applicationID, userID, organizationID string) error {
	return nil
}

func memberClaims(roles ...interface{}) map[string]interface{} {
	return map[string]interface{}{
		"sub":   "user1",
		"aud":   []interface{}{"urn:logto:organization:org1"},
		"exp":   float64(time.Now().Add(time.Hour).Unix()),
		"iat":   float64(time.Now().Unix()),
		"roles": roles,
	}
}

func newTestServer(t *testing.T, verifier authn.TokenVerifier) *httptest.Server {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := cache.NewTTL[[]ecosystem.App](time.Minute)
	t.Cleanup(store.Stop)
	resolver := ecosystem.NewResolver(stubDirectory{}, store, log)

	cfg := config.NewDefault()
	srv := New(log, cfg, verifier, authn.NewBuilder(), resolver, instrumentation.NewMetrics())

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthzIsPublic(t *testing.T) {
	ts := newTestServer(t, staticVerifier{claims: memberClaims("member")})

	resp := doRequest(t, ts, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMissingBearerTokenRejected(t *testing.T) {
	ts := newTestServer(t, staticVerifier{claims: memberClaims("member")})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInvalidTokenRejected(t *testing.T) {
	ts := newTestServer(t, staticVerifier{err: &authn.ClaimError{Code: authn.CodeInvalidSignature}})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/me", "bad-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMeReportsOrganizationContext(t *testing.T) {
	ts := newTestServer(t, staticVerifier{claims: memberClaims("member")})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/me", "token")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		IsOrganizationScoped bool `json:"isOrganizationScoped"`
		Organization         struct {
			OrganizationID string   `json:"organizationId"`
			Roles          []string `json:"roles"`
		} `json:"organization"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.IsOrganizationScoped)
	assert.Equal(t, "org1", body.Organization.OrganizationID)
	assert.Equal(t, []string{"member"}, body.Organization.Roles)
}

func TestListAppsForAuthenticatedUser(t *testing.T) {
	ts := newTestServer(t, staticVerifier{claims: memberClaims("member")})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/ecosystem/apps", "token")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var apps []ecosystem.App
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apps))
	require.Len(t, apps, 1)
	assert.Equal(t, "app1", apps[0].ID)
	assert.True(t, apps[0].HasAccess)
	assert.Equal(t, "org1", apps[0].OrganizationID)
}

func TestActingOnAnotherUserRequiresAdmin(t *testing.T) {
	ts := newTestServer(t, staticVerifier{claims: memberClaims("member")})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/ecosystem/apps?user=other", "token")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminMayActOnAnotherUser(t *testing.T) {
	ts := newTestServer(t, staticVerifier{claims: memberClaims("admin")})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/ecosystem/apps?user=other", "token")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGrantUnknownAppReturnsNotFound(t *testing.T) {
	ts := newTestServer(t, staticVerifier{claims: memberClaims("member")})

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/ecosystem/apps/unknown/access", "token")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAccessStats(t *testing.T) {
	ts := newTestServer(t, staticVerifier{claims: memberClaims("member")})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/ecosystem/stats", "token")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats ecosystem.AccessStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalApps)
	assert.Equal(t, 1, stats.ActiveAccess)
}
