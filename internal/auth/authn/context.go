package authn

import (
	"time"

	"github.com/orgctl/orgctl/internal/auth/common"
)

// OrganizationContext is the validated, organization-scoped view of a bearer
// token. It is constructed fresh per request, never mutated, and discarded at
// the end of the request.
type OrganizationContext struct {
	OrganizationID string   `json:"organizationId"`
	UserID         string   `json:"userId"`
	Permissions    []string `json:"permissions"`
	Scopes         []string `json:"scopes"`
	Roles          []string `json:"roles"`
	TokenExpiry    int64    `json:"tokenExpiry"`
	IssuedAt       int64    `json:"issuedAt"`

	// Optional enrichment, populated only when requested via BuildOptions.
	Email            string `json:"email,omitempty"`
	Name             string `json:"name,omitempty"`
	OrganizationName string `json:"organizationName,omitempty"`
}

// EnrichedContext wraps the outcome of token validation for one request.
// Organization is nil for valid tokens that carry no organization audience;
// IsOrganizationScoped distinguishes that state from the scoped one.
type EnrichedContext struct {
	Organization         *OrganizationContext
	Claims               map[string]interface{}
	Token                string
	IsOrganizationScoped bool
	ValidatedAt          time.Time
}

// BuildOptions controls profile enrichment during context construction.
// Both default off so profile data is not leaked to callers that do not
// need it.
type BuildOptions struct {
	IncludeProfile              bool
	IncludeOrganizationMetadata bool
}

// Builder turns verified JWT payloads into organization contexts. It performs
// no I/O; its only ambient dependency is the wall clock, injectable for tests.
type Builder struct {
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// NewBuilderWithClock returns a Builder using the given clock.
func NewBuilderWithClock(now func() time.Time) *Builder {
	return &Builder{now: now}
}

// ValidatePayload checks the structural claims a usable token must carry.
// Checks run in a fixed order and short-circuit on the first failure:
// subject, audience, expiry and issued-at presence (MISSING_CLAIMS), then
// expiry strictly after now (EXPIRED_TOKEN). A nil return means the payload
// passed all checks.
func (b *Builder) ValidatePayload(claims map[string]interface{}) *ClaimError {
	sub, ok := common.ExtractStringClaim(claims, "sub")
	if !ok || sub == "" {
		return newClaimError(CodeMissingClaims, "sub", claims["sub"])
	}
	if _, exists := claims["aud"]; !exists {
		return newClaimError(CodeMissingClaims, "aud", nil)
	}
	exp, ok := common.ExtractNumericClaim(claims, "exp")
	if !ok {
		return newClaimError(CodeMissingClaims, "exp", claims["exp"])
	}
	if _, ok := common.ExtractNumericClaim(claims, "iat"); !ok {
		return newClaimError(CodeMissingClaims, "iat", claims["iat"])
	}
	if exp <= b.now().Unix() {
		return newClaimError(CodeExpiredToken, "exp", exp)
	}
	return nil
}

// BuildOrganizationContext validates the payload and assembles an
// OrganizationContext from it. A validation failure is returned as an error.
// A payload whose audience carries no organization entry yields (nil, nil):
// a valid, non-organization-scoped token, which callers must treat as a
// legitimate branch rather than a failure.
func (b *Builder) BuildOrganizationContext(claims map[string]interface{}, opts BuildOptions) (*OrganizationContext, error) {
	if cerr := b.ValidatePayload(claims); cerr != nil {
		return nil, cerr
	}

	orgID, found := common.ExtractOrganizationID(claims["aud"])
	if !found {
		return nil, nil
	}

	exp, _ := common.ExtractNumericClaim(claims, "exp")
	iat, _ := common.ExtractNumericClaim(claims, "iat")
	sub, _ := common.ExtractStringClaim(claims, "sub")

	orgCtx := &OrganizationContext{
		OrganizationID: orgID,
		UserID:         sub,
		Permissions:    common.ParsePermissions(claims),
		Scopes:         common.ParseScopes(claims["scope"]),
		Roles:          common.ParseRoles(claims),
		TokenExpiry:    exp,
		IssuedAt:       iat,
	}

	if opts.IncludeProfile {
		orgCtx.Email, _ = common.ExtractStringClaim(claims, "email")
		orgCtx.Name, _ = common.ExtractStringClaim(claims, "name")
	}
	if opts.IncludeOrganizationMetadata {
		orgCtx.OrganizationName, _ = common.ExtractStringClaim(claims, "organization_name")
	}

	return orgCtx, nil
}

// NewEnrichedContext validates the payload once and wraps the result for the
// rest of the request. Construction fails only on claim errors; the
// non-organization-scoped branch is reported through IsOrganizationScoped.
func (b *Builder) NewEnrichedContext(claims map[string]interface{}, token string, opts BuildOptions) (*EnrichedContext, error) {
	orgCtx, err := b.BuildOrganizationContext(claims, opts)
	if err != nil {
		return nil, err
	}
	return &EnrichedContext{
		Organization:         orgCtx,
		Claims:               claims,
		Token:                token,
		IsOrganizationScoped: orgCtx != nil,
		ValidatedAt:          b.now(),
	}, nil
}
