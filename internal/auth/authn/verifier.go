package authn

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenVerifier checks a raw bearer token's signature against the issuer's
// JWKS and hands back the claims as a generic map for context construction.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (map[string]interface{}, error)
}

type oidcDiscovery struct {
	TokenEndpoint string `json:"token_endpoint"`
	JwksUri       string `json:"jwks_uri"`
}

// JWKSVerifier verifies token signatures against the issuer's published key
// set. The key set is fetched through a refreshing cache so steady-state
// verification performs no network calls.
type JWKSVerifier struct {
	issuer  string
	jwksUri string
	client  *http.Client
	cache   *jwk.Cache
}

// NewJWKSVerifier discovers the issuer's JWKS endpoint via its OIDC discovery
// document and registers it with a background-refreshing key cache. The
// context bounds the cache's refresh goroutine lifetime.
func NewJWKSVerifier(ctx context.Context, issuer string, tlsConfig *tls.Config) (*JWKSVerifier, error) {
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
		Timeout: 10 * time.Second,
	}

	issuer = strings.TrimSuffix(issuer, "/")
	res, err := client.Get(fmt.Sprintf("%s/.well-known/openid-configuration", issuer))
	if err != nil {
		return nil, fmt.Errorf("fetching OIDC discovery document: %w", err)
	}
	defer res.Body.Close()
	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading OIDC discovery document: %w", err)
	}
	discovery := oidcDiscovery{}
	if err := json.Unmarshal(bodyBytes, &discovery); err != nil {
		return nil, fmt.Errorf("parsing OIDC discovery document: %w", err)
	}
	if discovery.JwksUri == "" {
		return nil, fmt.Errorf("issuer %s published no jwks_uri", issuer)
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(discovery.JwksUri, jwk.WithHTTPClient(client), jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("registering JWKS endpoint: %w", err)
	}

	return &JWKSVerifier{
		issuer:  issuer,
		jwksUri: discovery.JwksUri,
		client:  client,
		cache:   cache,
	}, nil
}

// Verify checks the token signature and returns the claims as a map. Expiry
// is deliberately not validated here; the Builder owns temporal validation so
// rejections carry its structured codes. Signature failures surface as
// INVALID_SIGNATURE, everything else about the token's shape as
// INVALID_FORMAT.
func (v *JWKSVerifier) Verify(ctx context.Context, token string) (map[string]interface{}, error) {
	keySet, err := v.cache.Get(ctx, v.jwksUri)
	if err != nil {
		return nil, fmt.Errorf("fetching JWK set: %w", err)
	}

	if strings.Count(token, ".") != 2 {
		return nil, newClaimError(CodeInvalidFormat, "", nil)
	}

	parsed, err := jwt.Parse([]byte(token), jwt.WithKeySet(keySet), jwt.WithValidate(false))
	if err != nil {
		return nil, newClaimError(CodeInvalidSignature, "", nil)
	}

	claims, err := parsed.AsMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("extracting claims: %w", err)
	}
	return normalizeClaims(claims), nil
}

// normalizeClaims flattens jwx's typed claim values back to the wire shapes
// the builder expects: registered time claims become unix seconds and a
// single-entry audience becomes a plain string list.
func normalizeClaims(claims map[string]interface{}) map[string]interface{} {
	for _, name := range []string{"exp", "iat", "nbf"} {
		if ts, ok := claims[name].(time.Time); ok {
			claims[name] = ts.Unix()
		}
	}
	return claims
}
