package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/orgctl/orgctl/internal/ocerrors"
)

// Directory is the catalog and consent store the access resolver depends on.
// All calls are request-response against the external identity service.
type Directory interface {
	ListApplications(ctx context.Context) ([]Application, error)
	GetApplication(ctx context.Context, id string) (*Application, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
	ListOrganizationApplications(ctx context.Context, orgID string) ([]Application, error)
	ListOrganizationMembers(ctx context.Context, orgID string) ([]UserRef, error)
	ListConsentOrganizations(ctx context.Context, applicationID, userID string) ([]Organization, error)
	GrantConsentOrganizations(ctx context.Context, applicationID, userID string, organizationIDs []string) error
	RevokeConsentOrganization(ctx context.Context, applicationID, userID, organizationID string) error
}

// MetricsCallback reports one directory call for instrumentation.
type MetricsCallback func(operation string, durationSeconds float64, err error)

// Config holds the connection settings for the management API. ClientID and
// ClientSecret authenticate this service via the client-credentials grant.
type Config struct {
	// Endpoint is the tenant base URL, e.g. https://tenant.logto.app.
	Endpoint string `json:"endpoint"`
	ClientID string `json:"clientId"`
	// ClientSecret may be supplied via environment instead of the config
	// file.
	ClientSecret string `json:"clientSecret,omitempty"`
	// Resource is the management API resource indicator. Defaults to
	// <endpoint>/api.
	Resource string `json:"resource,omitempty"`
	// Timeout bounds each management API call. Defaults to 15s.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Client talks to the management API. The underlying HTTP client obtains and
// refreshes its service token through the client-credentials grant; token
// caching is handled by the oauth2 token source.
type Client struct {
	endpoint        string
	httpClient      *http.Client
	metricsCallback MetricsCallback
}

// NewClient validates the configuration and builds an authenticated client.
// Missing credentials are a construction-time failure: there is no
// per-request recovery from a misconfigured service identity.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("directory: endpoint is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("directory: client credentials are required")
	}

	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	resource := cfg.Resource
	if resource == "" {
		resource = endpoint + "/api"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	ccfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     endpoint + "/oidc/token",
		EndpointParams: url.Values{
			"resource": {resource},
			"scope":    {"all"},
		},
	}

	httpClient := ccfg.Client(ctx)
	httpClient.Timeout = timeout

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
	}, nil
}

// SetMetricsCallback installs a per-call instrumentation hook.
func (c *Client) SetMetricsCallback(cb MetricsCallback) {
	c.metricsCallback = cb
}

func (c *Client) ListApplications(ctx context.Context) ([]Application, error) {
	var apps []Application
	err := c.do(ctx, "list_applications", http.MethodGet, "/api/applications", nil, &apps)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	return apps, nil
}

func (c *Client) GetApplication(ctx context.Context, id string) (*Application, error) {
	var app Application
	err := c.do(ctx, "get_application", http.MethodGet, "/api/applications/"+url.PathEscape(id), nil, &app)
	if err != nil {
		return nil, fmt.Errorf("getting application %s: %w", id, err)
	}
	return &app, nil
}

func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	err := c.do(ctx, "list_organizations", http.MethodGet, "/api/organizations", nil, &orgs)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	return orgs, nil
}

func (c *Client) ListOrganizationApplications(ctx context.Context, orgID string) ([]Application, error) {
	var apps []Application
	err := c.do(ctx, "list_organization_applications", http.MethodGet, "/api/organizations/"+url.PathEscape(orgID)+"/applications", nil, &apps)
	if err != nil {
		return nil, fmt.Errorf("listing applications of organization %s: %w", orgID, err)
	}
	return apps, nil
}

func (c *Client) ListOrganizationMembers(ctx context.Context, orgID string) ([]UserRef, error) {
	var members []UserRef
	err := c.do(ctx, "list_organization_members", http.MethodGet, "/api/organizations/"+url.PathEscape(orgID)+"/users", nil, &members)
	if err != nil {
		return nil, fmt.Errorf("listing members of organization %s: %w", orgID, err)
	}
	return members, nil
}

func (c *Client) ListConsentOrganizations(ctx context.Context, applicationID, userID string) ([]Organization, error) {
	var orgs []Organization
	path := consentPath(applicationID, userID)
	err := c.do(ctx, "list_consent_organizations", http.MethodGet, path, nil, &orgs)
	if err != nil {
		return nil, fmt.Errorf("listing consent organizations for application %s, user %s: %w", applicationID, userID, err)
	}
	return orgs, nil
}

// GrantConsentOrganizations records consent for the given organizations. The
// directory treats this as additive; prior consents are untouched.
func (c *Client) GrantConsentOrganizations(ctx context.Context, applicationID, userID string, organizationIDs []string) error {
	body := map[string][]string{"organizationIds": organizationIDs}
	path := consentPath(applicationID, userID)
	if err := c.do(ctx, "grant_consent_organizations", http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("granting consent for application %s, user %s: %w", applicationID, userID, err)
	}
	return nil
}

func (c *Client) RevokeConsentOrganization(ctx context.Context, applicationID, userID, organizationID string) error {
	path := consentPath(applicationID, userID) + "/" + url.PathEscape(organizationID)
	if err := c.do(ctx, "revoke_consent_organization", http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("revoking consent for application %s, user %s, organization %s: %w", applicationID, userID, organizationID, err)
	}
	return nil
}

func consentPath(applicationID, userID string) string {
	return "/api/applications/" + url.PathEscape(applicationID) + "/users/" + url.PathEscape(userID) + "/consent-organizations"
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out interface{}) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, body, out)
	if c.metricsCallback != nil {
		c.metricsCallback(operation, time.Since(start).Seconds(), err)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Correlation id for tracing a call through the directory's logs.
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ocerrors.ErrResourceNotFound
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("directory returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding directory response: %w", err)
	}
	return nil
}
