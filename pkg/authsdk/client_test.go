package authsdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/petauth/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// fakeAuth accepts refresh token "r1" exactly once and access tokens "a1"
// and "a2".
type fakeAuth struct {
	refreshes atomic.Int32
	used      atomic.Bool
}

func (f *fakeAuth) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshes.Add(1)
		var req authsdk.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "r1" || !f.used.CompareAndSwap(false, true) {
			authsdk.ErrInvalidGrant.WriteError(w)
			return
		}
		_ = json.NewEncoder(w).Encode(authsdk.TokenResponse{
			AccessToken:  "a2",
			RefreshToken: "r2",
			TokenType:    "Bearer",
			ExpiresIn:    900,
		})
	})
	mux.HandleFunc("GET /v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer a1", "Bearer a2":
			_ = json.NewEncoder(w).Encode(authsdk.MeResponse{Subject: "7", Kind: "user"})
		default:
			authsdk.ErrInvalidToken.WriteError(w)
		}
	})
	mux.HandleFunc("POST /v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not json"))
	})
	return mux
}

func newClient(t *testing.T) (*authsdk.SDKClient, *fakeAuth) {
	t.Helper()
	f := &fakeAuth{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return authsdk.NewSDKClient(srv.URL + "/"), f
}

func TestSessionRefreshesExpiredToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, f := newClient(t)

	s := c.NewSessionFromTokens("stale", "r1", 0)
	me, err := s.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "7", me.Subject)
	require.Equal(t, "a2", s.AccessToken())
	require.Equal(t, "r2", s.RefreshToken())
	require.EqualValues(t, 1, f.refreshes.Load())

	// Still valid, no second refresh.
	_, err = s.Me(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.refreshes.Load())
}

func TestRefreshReplayIsInvalidGrant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)

	_, err := c.RefreshGrant(ctx, "r1")
	require.NoError(t, err)

	_, err = c.RefreshGrant(ctx, "r1")
	require.ErrorIs(t, err, authsdk.ErrInvalidGrant)

	var oe *authsdk.OAuth2Error
	require.True(t, errors.As(err, &oe))
	require.Equal(t, "invalid refresh token", oe.Description)
}

func TestFailedRefreshEndsSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)

	s := c.NewSessionFromTokens("stale", "bogus", 0)
	_, err := s.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrInvalidGrant)
	require.Empty(t, s.RefreshToken())
}

func TestUnreachableServerKeepsRefreshToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := &fakeAuth{}
	srv := httptest.NewServer(f.handler())
	c := authsdk.NewSDKClient(srv.URL + "/")
	srv.Close()

	s := c.NewSessionFromTokens("stale", "r1", 0)
	_, err := s.Me(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, authsdk.ErrInvalidGrant)
	require.Equal(t, "r1", s.RefreshToken())
}

func TestServerErrorKeepsRefreshToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := &fakeAuth{}
	var down atomic.Bool
	down.Store(true)
	inner := f.handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	c := authsdk.NewSDKClient(srv.URL + "/")

	s := c.NewSessionFromTokens("stale", "r1", 0)
	_, err := s.Me(ctx)
	require.Error(t, err)
	require.Equal(t, "r1", s.RefreshToken())

	// Once the server is back the kept token still rotates.
	down.Store(false)
	me, err := s.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "7", me.Subject)
	require.Equal(t, "r2", s.RefreshToken())
}

func TestLogoutDropsRefreshToken(t *testing.T) {
	t.Parallel()
	c, _ := newClient(t)

	s := c.NewSessionFromTokens("a1", "r1", 900)
	require.NoError(t, s.Logout(context.Background()))
	require.Empty(t, s.RefreshToken())
}

func TestNonJSONErrorFallsBack(t *testing.T) {
	t.Parallel()
	c, _ := newClient(t)

	_, err := c.GetReadiness(context.Background())
	var oe *authsdk.OAuth2Error
	require.True(t, errors.As(err, &oe))
	require.Equal(t, http.StatusServiceUnavailable, oe.StatusCode)
	require.Equal(t, authsdk.ErrorCodeServerError, oe.Code)
}

func TestWriteErrorSetsChallenge(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	authsdk.ErrInvalidToken.WriteError(rec)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	authsdk.ErrInvalidGrant.WriteError(rec)
	require.Empty(t, rec.Header().Get("WWW-Authenticate"))
}
