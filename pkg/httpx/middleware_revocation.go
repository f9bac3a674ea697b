package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/petauth/pkg/slogx"
)

// RevocationChecker answers whether a token id has been revoked.
// store.Blacklist satisfies it.
type RevocationChecker interface {
	IsBlacklisted(ctx context.Context, tokenID string, now time.Time) (bool, error)
}

// FailurePolicy decides what happens to a request when the revocation
// store cannot be reached.
type FailurePolicy int

const (
	// FailClosed rejects the request. A revoked token can never slip through
	// but a store outage locks every caller out.
	FailClosed FailurePolicy = iota

	// FailOpen admits the request. Callers keep working through an outage
	// and a revoked token stays usable until it expires.
	FailOpen
)

func (p FailurePolicy) String() string {
	if p == FailOpen {
		return "open"
	}
	return "closed"
}

// ParseFailurePolicy accepts "closed", "open" or "" (closed).
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "closed":
		return FailClosed, nil
	case "open":
		return FailOpen, nil
	default:
		return FailClosed, fmt.Errorf("httpx: unknown revocation failure policy %q", s)
	}
}

// RevocationMiddleware rejects requests whose access token was revoked
// before its expiry. It must run after AuthnMiddleware.
func RevocationMiddleware(checker RevocationChecker, policy FailurePolicy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p := PrincipalFromContext(ctx)

			if !p.IsAuthenticated() {
				writeBearerError(w, "missing bearer token")
				return
			}
			if p.TokenID == "" {
				slogx.Security(ctx).Warn("token_rejected", "reason", "missing_jti", "sub", p.ID)
				writeBearerError(w, "token has no id")
				return
			}

			revoked, err := checker.IsBlacklisted(ctx, p.TokenID, time.Now())
			if err != nil {
				if policy == FailOpen {
					slogx.FromContext(ctx).Warn("revocation check failed, admitting request",
						"policy", policy.String(),
						"err", err,
					)
					next.ServeHTTP(w, r)
					return
				}
				slogx.FromContext(ctx).Error("revocation check failed, rejecting request",
					"policy", policy.String(),
					"err", err,
				)
				writeBearerError(w, "token status unavailable")
				return
			}

			if revoked {
				slogx.FromContext(ctx).Info("token_rejected", "reason", "revoked", "sub", p.ID)
				writeBearerError(w, "token revoked")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
