package http

import (
	"net/http"

	"github.com/aussiebroadwan/petauth/pkg/authsdk"
	"github.com/aussiebroadwan/petauth/pkg/httpx"
	"github.com/aussiebroadwan/petauth/pkg/jwtx"
)

// JWKSHandler publishes the verification keys at /.well-known/jwks.json.
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(keys.PublicJWKS()))
	}
}
