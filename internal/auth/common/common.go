package common

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type ctxKeyAuth string

const (
	AuthHeader  string     = "Authorization"
	TokenCtxKey ctxKeyAuth = "TokenCtxKey"
	AuthCtxKey  ctxKeyAuth = "AuthCtxKey"
)

// OrganizationAudiencePrefix marks an audience entry as organization-scoped.
// The suffix after the prefix is the organization id.
const OrganizationAudiencePrefix = "urn:logto:organization:"

// permissionClaimNames are probed in order; the first claim that parses to a
// non-empty string list wins. Tokens from different issuer versions populate
// different variants, so this is best-effort schema migration, not guesswork.
var permissionClaimNames = []string{
	"permissions",
	"perms",
	"urn:logto:claim:permissions",
	"https://claims.logto.dev/permissions",
}

// roleClaimNames follow the same probing scheme as permissionClaimNames.
// The singular "role" variant carries one string and is wrapped into a
// one-element list.
var roleClaimNames = []string{
	"roles",
	"role",
	"urn:logto:claim:roles",
	"https://claims.logto.dev/roles",
}

// ExtractBearerToken extracts the bearer token from the Authorization header
// of r. It returns an error if the header is missing, does not carry the
// "Bearer " prefix, or contains an empty token after trimming.
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get(AuthHeader)
	if authHeader == "" {
		return "", fmt.Errorf("empty %s header", AuthHeader)
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return "", fmt.Errorf("invalid %s header", AuthHeader)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("invalid token")
	}
	return token, nil
}

// TokenFromContext returns the raw bearer token stored by the auth middleware.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenCtxKey).(string)
	return token, ok
}

// ExtractOrganizationID scans the audience claim for an entry carrying the
// organization audience prefix and returns the organization id suffix of the
// first match. The audience may be a single string or a list of strings;
// anything else, or no matching entry, yields ("", false). An absent
// organization audience is a valid state, not an error: it means the token is
// platform-scoped rather than organization-scoped.
func ExtractOrganizationID(audience interface{}) (string, bool) {
	switch aud := audience.(type) {
	case string:
		if strings.HasPrefix(aud, OrganizationAudiencePrefix) {
			return strings.TrimPrefix(aud, OrganizationAudiencePrefix), true
		}
	case []string:
		for _, entry := range aud {
			if strings.HasPrefix(entry, OrganizationAudiencePrefix) {
				return strings.TrimPrefix(entry, OrganizationAudiencePrefix), true
			}
		}
	case []interface{}:
		for _, item := range aud {
			entry, ok := item.(string)
			if !ok {
				continue
			}
			if strings.HasPrefix(entry, OrganizationAudiencePrefix) {
				return strings.TrimPrefix(entry, OrganizationAudiencePrefix), true
			}
		}
	}
	return "", false
}

// ParseScopes parses the scope claim into a list of scope names. The claim
// may be a space-delimited string or a list of strings; empty and
// whitespace-only entries are dropped. Parsing is lenient: malformed input
// degrades to fewer scopes, never an error.
func ParseScopes(scope interface{}) []string {
	return parseStringListClaim(scope)
}

// ParsePermissions probes the known permission claim variants in priority
// order and returns the first non-empty list found. Tokens that carry no
// permission claim yield an empty slice, which is a legitimate state.
func ParsePermissions(claims map[string]interface{}) []string {
	return probeClaimList(claims, permissionClaimNames)
}

// ParseRoles probes the known role claim variants in priority order. The
// singular "role" claim is accepted and wrapped into a one-element list.
func ParseRoles(claims map[string]interface{}) []string {
	return probeClaimList(claims, roleClaimNames)
}

func probeClaimList(claims map[string]interface{}, names []string) []string {
	for _, name := range names {
		value, exists := claims[name]
		if !exists {
			continue
		}
		if parsed := parseStringListClaim(value); len(parsed) > 0 {
			return RemoveDuplicateStrings(parsed)
		}
	}
	return []string{}
}

// parseStringListClaim extracts string values from a claim that may be a
// list ([]string or []interface{}) or a space-separated string. Non-string
// items and empty strings are ignored.
func parseStringListClaim(claim interface{}) []string {
	var values []string

	switch v := claim.(type) {
	case []string:
		for _, item := range v {
			if strings.TrimSpace(item) != "" {
				values = append(values, item)
			}
		}
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				values = append(values, str)
			}
		}
	case string:
		values = append(values, strings.Fields(v)...)
	}

	if values == nil {
		return []string{}
	}
	return values
}

// ExtractStringClaim returns the named claim when present and a non-empty
// string, otherwise ("", false).
func ExtractStringClaim(claims map[string]interface{}, name string) (string, bool) {
	if value, ok := claims[name].(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// ExtractNumericClaim returns the named claim coerced to int64. JSON decoding
// yields float64 for numbers; token libraries may hand over int64 directly.
func ExtractNumericClaim(claims map[string]interface{}, name string) (int64, bool) {
	switch v := claims[name].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// RemoveDuplicateStrings returns a new slice preserving the original order
// but omitting duplicate and empty strings.
func RemoveDuplicateStrings(input []string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, item := range input {
		if !seen[item] && item != "" {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}
