package authn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testBuilder() *Builder {
	return NewBuilderWithClock(func() time.Time { return testNow })
}

func validClaims() map[string]interface{} {
	return map[string]interface{}{
		"sub":   "user1",
		"aud":   []interface{}{"urn:logto:organization:org1"},
		"exp":   float64(testNow.Add(time.Hour).Unix()),
		"iat":   float64(testNow.Add(-time.Minute).Unix()),
		"scope": "read write",
		"roles": []interface{}{"admin"},
		"permissions": []interface{}{
			"read:data", "manage:members",
		},
		"email":             "user1@example.com",
		"name":              "User One",
		"organization_name": "Org One",
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(map[string]interface{})
		expectedCode ErrorCode
		claim        string
	}{
		{name: "valid payload", mutate: func(m map[string]interface{}) {}},
		{
			name:         "missing subject",
			mutate:       func(m map[string]interface{}) { delete(m, "sub") },
			expectedCode: CodeMissingClaims,
			claim:        "sub",
		},
		{
			name:         "empty subject",
			mutate:       func(m map[string]interface{}) { m["sub"] = "" },
			expectedCode: CodeMissingClaims,
			claim:        "sub",
		},
		{
			name:         "non-string subject",
			mutate:       func(m map[string]interface{}) { m["sub"] = 42 },
			expectedCode: CodeMissingClaims,
			claim:        "sub",
		},
		{
			name:         "missing audience",
			mutate:       func(m map[string]interface{}) { delete(m, "aud") },
			expectedCode: CodeMissingClaims,
			claim:        "aud",
		},
		{
			name:         "missing expiry",
			mutate:       func(m map[string]interface{}) { delete(m, "exp") },
			expectedCode: CodeMissingClaims,
			claim:        "exp",
		},
		{
			name:         "non-numeric expiry",
			mutate:       func(m map[string]interface{}) { m["exp"] = "soon" },
			expectedCode: CodeMissingClaims,
			claim:        "exp",
		},
		{
			name:         "missing issued-at",
			mutate:       func(m map[string]interface{}) { delete(m, "iat") },
			expectedCode: CodeMissingClaims,
			claim:        "iat",
		},
		{
			name:         "expired token",
			mutate:       func(m map[string]interface{}) { m["exp"] = float64(testNow.Unix()) },
			expectedCode: CodeExpiredToken,
			claim:        "exp",
		},
		{
			name: "subject failure reported before expiry failure",
			mutate: func(m map[string]interface{}) {
				delete(m, "sub")
				m["exp"] = float64(testNow.Add(-time.Hour).Unix())
			},
			expectedCode: CodeMissingClaims,
			claim:        "sub",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(claims)

			cerr := testBuilder().ValidatePayload(claims)
			if tt.expectedCode == "" {
				assert.Nil(t, cerr)
				return
			}
			require.NotNil(t, cerr)
			assert.Equal(t, tt.expectedCode, cerr.Code)
			assert.Equal(t, tt.claim, cerr.Claim)
		})
	}
}

func TestBuildOrganizationContext(t *testing.T) {
	b := testBuilder()

	orgCtx, err := b.BuildOrganizationContext(validClaims(), BuildOptions{})
	require.NoError(t, err)
	require.NotNil(t, orgCtx)
	assert.Equal(t, "org1", orgCtx.OrganizationID)
	assert.Equal(t, "user1", orgCtx.UserID)
	assert.Equal(t, []string{"read", "write"}, orgCtx.Scopes)
	assert.Equal(t, []string{"admin"}, orgCtx.Roles)
	assert.Equal(t, []string{"read:data", "manage:members"}, orgCtx.Permissions)
	assert.Equal(t, testNow.Add(time.Hour).Unix(), orgCtx.TokenExpiry)
	assert.Equal(t, testNow.Add(-time.Minute).Unix(), orgCtx.IssuedAt)

	// Enrichment defaults off.
	assert.Empty(t, orgCtx.Email)
	assert.Empty(t, orgCtx.Name)
	assert.Empty(t, orgCtx.OrganizationName)
}

func TestBuildOrganizationContextEnrichment(t *testing.T) {
	b := testBuilder()

	orgCtx, err := b.BuildOrganizationContext(validClaims(), BuildOptions{
		IncludeProfile:              true,
		IncludeOrganizationMetadata: true,
	})
	require.NoError(t, err)
	require.NotNil(t, orgCtx)
	assert.Equal(t, "user1@example.com", orgCtx.Email)
	assert.Equal(t, "User One", orgCtx.Name)
	assert.Equal(t, "Org One", orgCtx.OrganizationName)
}

func TestBuildOrganizationContextNonOrganizationToken(t *testing.T) {
	claims := validClaims()
	claims["aud"] = []interface{}{"https://api.example.com"}

	orgCtx, err := testBuilder().BuildOrganizationContext(claims, BuildOptions{})
	require.NoError(t, err)
	assert.Nil(t, orgCtx, "a valid non-organization token must yield a nil context, not an error")
}

func TestBuildOrganizationContextExpired(t *testing.T) {
	claims := validClaims()
	claims["exp"] = float64(testNow.Add(-time.Second).Unix())

	_, err := testBuilder().BuildOrganizationContext(claims, BuildOptions{})
	require.Error(t, err)
	var cerr *ClaimError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodeExpiredToken, cerr.Code)
}

func TestNewEnrichedContext(t *testing.T) {
	b := testBuilder()

	enriched, err := b.NewEnrichedContext(validClaims(), "raw-token", BuildOptions{})
	require.NoError(t, err)
	assert.True(t, enriched.IsOrganizationScoped)
	assert.Equal(t, "raw-token", enriched.Token)
	assert.Equal(t, testNow, enriched.ValidatedAt)
	require.NotNil(t, enriched.Organization)

	claims := validClaims()
	claims["aud"] = "https://api.example.com"
	enriched, err = b.NewEnrichedContext(claims, "raw-token", BuildOptions{})
	require.NoError(t, err)
	assert.False(t, enriched.IsOrganizationScoped)
	assert.Nil(t, enriched.Organization)
}
