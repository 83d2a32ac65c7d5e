package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/orgctl/orgctl/internal/auth/authn"
	"github.com/orgctl/orgctl/internal/auth/common"
)

const (
	errUnauthorized          = "Unauthorized"
	errAuthServerUnavailable = "Authorization server unavailable"
)

// AuthMiddleware verifies the bearer token of every request and stores the
// resulting enriched context for the handlers. Claim errors reject with 401;
// a verifier that cannot reach the authorization server rejects with 503.
func AuthMiddleware(verifier authn.TokenVerifier, builder *authn.Builder, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			token, err := common.ExtractBearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, errUnauthorized)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				var claimErr *authn.ClaimError
				if errors.As(err, &claimErr) {
					log.WithField("code", claimErr.Code).Debug("token verification failed")
					writeError(w, http.StatusUnauthorized, errUnauthorized)
					return
				}
				log.WithError(err).Error("token verification unavailable")
				writeError(w, http.StatusServiceUnavailable, errAuthServerUnavailable)
				return
			}

			enriched, err := builder.NewEnrichedContext(claims, token, authn.BuildOptions{
				IncludeProfile:              true,
				IncludeOrganizationMetadata: true,
			})
			if err != nil {
				writeError(w, http.StatusUnauthorized, errUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), common.TokenCtxKey, token)
			ctx = context.WithValue(ctx, common.AuthCtxKey, enriched)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

// enrichedFromContext returns the enriched auth context stored by
// AuthMiddleware.
func enrichedFromContext(ctx context.Context) (*authn.EnrichedContext, bool) {
	enriched, ok := ctx.Value(common.AuthCtxKey).(*authn.EnrichedContext)
	return enriched, ok
}
