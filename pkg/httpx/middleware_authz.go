package httpx

import (
	"net/http"
	"strings"
)

// RequireAnyRole admits callers holding at least one of roles.
func RequireAnyRole(roles ...string) Middleware {
	return requireRoles(roles, Principal.HasAnyRole)
}

// RequireAllRoles admits callers holding every one of roles.
func RequireAllRoles(roles ...string) Middleware {
	return requireRoles(roles, Principal.HasAllRoles)
}

func requireRoles(roles []string, check func(Principal, ...string) bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if !p.IsAuthenticated() {
				writeBearerError(w, "missing bearer token")
				return
			}
			if !check(p, roles...) {
				writeInsufficientRole(w, roles)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeInsufficientRole(w http.ResponseWriter, required []string) {
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	WriteError(w, http.StatusForbidden, "insufficient_scope", "missing required role")
}
