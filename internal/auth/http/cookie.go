package http

import (
	"net/http"
	"time"
)

const (
	RefreshCookieName = "refresh_token"
	refreshCookiePath = "/v1/auth"
)

// CookieConfig controls the refresh token cookie. Browsers get the refresh
// token only through it; native clients can ignore it and use the body.
type CookieConfig struct {
	// Secure should be on everywhere except plain-http development.
	Secure bool
}

func (c CookieConfig) set(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Expires:  expires,
		MaxAge:   max(int(time.Until(expires).Seconds()), 1),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
