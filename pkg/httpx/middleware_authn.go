package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/petauth/pkg/jwtx"
	"github.com/aussiebroadwan/petauth/pkg/slogx"
)

// AuthnMiddleware verifies the bearer token and stores the caller in the
// request context. It does not consult the blacklist; chain
// RevocationMiddleware after it for that.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := bearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				logRejection(r, err)
				if jwtx.IsExpired(err) {
					writeBearerError(w, "token expired")
				} else {
					writeBearerError(w, "token verification failed")
				}
				return
			}

			p := PrincipalFromClaims(claims)
			ctx = slogx.WithPrincipal(ctx, p.Kind+":"+p.ID, p.TokenID)
			ctx = WithPrincipal(ctx, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Expiry is routine, anything else may be an attack.
func logRejection(r *http.Request, err error) {
	ctx := r.Context()
	if jwtx.IsExpired(err) {
		slogx.FromContext(ctx).Debug("access token expired", "reason", string(jwtx.ReasonExpired))
		return
	}

	reason := "unknown"
	var ve *jwtx.VerifyError
	if errors.As(err, &ve) {
		reason = string(ve.Reason)
	}
	slogx.Security(ctx).Warn("token_rejected",
		"reason", reason,
		"err", err,
	)
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
