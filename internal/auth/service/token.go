package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/internal/auth/store"
	"github.com/aussiebroadwan/petauth/pkg/cryptox"
	"github.com/aussiebroadwan/petauth/pkg/jwtx"
	"github.com/aussiebroadwan/petauth/pkg/slogx"
)

var (
	// ErrInvalidRefresh covers every refresh failure. Callers must not be
	// able to tell an unknown token from an expired or already used one.
	ErrInvalidRefresh = errors.New("invalid_refresh_token")

	ErrInactivePrincipal = errors.New("inactive_principal")
	ErrMissingTokenID    = errors.New("missing_token_id")
)

// maxClearAttempts bounds how often logout retries clearing a refresh token
// that keeps rotating underneath it.
const maxClearAttempts = 3

// PrincipalResolver reloads a principal when its refresh token is used, so
// role changes and deactivation take effect at the next rotation. Unknown
// principals are reported as domain.ErrPrincipalNotFound.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, ref domain.PrincipalRef) (domain.Principal, error)
}

type TokenService struct {
	Issuer     *Issuer
	Store      store.Store
	Principals PrincipalResolver
	RefreshTTL time.Duration

	// RevokeRefreshOnLogout also invalidates the principal's refresh token
	// on logout. Off by default: logout then only ends the access token.
	RevokeRefreshOnLogout bool

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// LogoutRequest carries the identity of the access token being revoked.
type LogoutRequest struct {
	Principal domain.PrincipalRef
	TokenID   string
	ExpiresAt time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL <= 0 {
		return jwtx.DefaultRefreshTokenTTL
	}
	return s.RefreshTTL
}

// Login issues the first token pair for an already authenticated principal.
// Any earlier refresh token of the principal stops working.
func (s *TokenService) Login(ctx context.Context, p domain.Principal) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	if p == nil || !p.IsActive() {
		return nil, ErrInactivePrincipal
	}
	if !p.PrincipalKind().Valid() {
		return nil, fmt.Errorf("login: unknown principal kind %q", p.PrincipalKind())
	}

	now := s.now()
	pair, refreshHash, err := s.issuePair(p, now)
	if err != nil {
		return nil, err
	}

	ref := domain.RefOf(p)
	if err := s.Store.RefreshTokens().SetRefreshToken(ctx, ref, refreshHash, pair.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	l.Info("login issued tokens",
		slog.String("principal", ref.String()),
		slog.Time("access_expires_at", pair.AccessExpiresAt),
	)
	return pair, nil
}

// Refresh rotates a refresh token. Exactly one caller can exchange a given
// refresh token; every other attempt gets ErrInvalidRefresh.
func (s *TokenService) Refresh(ctx context.Context, presented string) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)
	now := s.now()

	if presented == "" {
		return nil, ErrInvalidRefresh
	}
	presentedHash := cryptox.FingerprintToken(presented)

	state, err := s.Store.RefreshTokens().FindRefreshState(ctx, presentedHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("refresh rejected", slog.String("reason", "unknown_token"))
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("load refresh state: %w", err)
	}

	if state.Expired(now) || !cryptox.EqualFingerprints(state.TokenHash, presentedHash) {
		l.Info("refresh rejected",
			slog.String("reason", "expired_or_mismatch"),
			slog.String("principal", state.Principal.String()),
		)
		return nil, ErrInvalidRefresh
	}

	p, err := s.Principals.ResolvePrincipal(ctx, state.Principal)
	if err != nil {
		if errors.Is(err, domain.ErrPrincipalNotFound) {
			l.Warn("refresh for unknown principal", slog.String("principal", state.Principal.String()))
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("resolve principal: %w", err)
	}
	if !p.IsActive() || domain.RefOf(p) != state.Principal {
		l.Info("refresh rejected",
			slog.String("reason", "inactive_principal"),
			slog.String("principal", state.Principal.String()),
		)
		return nil, ErrInvalidRefresh
	}

	pair, nextHash, err := s.issuePair(p, now)
	if err != nil {
		return nil, err
	}

	// Once the swap is sent it has to run to completion, whatever happens to
	// the client connection.
	swapCtx := context.WithoutCancel(ctx)
	swapped, err := s.Store.RefreshTokens().TrySwapRefreshToken(
		swapCtx, state.Principal, presentedHash, nextHash, pair.RefreshExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("swap refresh token: %w", err)
	}
	if !swapped {
		slogx.Security(ctx).Warn("refresh token already consumed",
			slog.String("principal", state.Principal.String()),
		)
		return nil, ErrInvalidRefresh
	}

	l.Info("refresh token rotated", slog.String("principal", state.Principal.String()))
	return pair, nil
}

// Logout blacklists the caller's access token until its own expiry.
func (s *TokenService) Logout(ctx context.Context, req LogoutRequest) error {
	l := slogx.FromContext(ctx)

	if req.TokenID == "" {
		return ErrMissingTokenID
	}

	entry := domain.BlacklistEntry{
		TokenID:       req.TokenID,
		PrincipalID:   req.Principal.ID,
		PrincipalKind: req.Principal.Kind,
		BlacklistedAt: s.now(),
		ExpiresAt:     req.ExpiresAt,
		Reason:        domain.LogoutReason,
	}
	if err := s.Store.Blacklist().BlacklistToken(ctx, entry); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}

	if s.RevokeRefreshOnLogout {
		if err := s.clearRefresh(ctx, req.Principal); err != nil {
			return err
		}
	}

	l.Info("logout",
		slog.String("principal", req.Principal.String()),
		slog.Bool("refresh_revoked", s.RevokeRefreshOnLogout),
	)
	return nil
}

// clearRefresh removes the principal's refresh state through the same
// compare-and-swap every other writer uses.
func (s *TokenService) clearRefresh(ctx context.Context, ref domain.PrincipalRef) error {
	rt := s.Store.RefreshTokens()

	for range maxClearAttempts {
		state, err := rt.GetRefreshState(ctx, ref)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load refresh state: %w", err)
		}

		cleared, err := rt.TrySwapRefreshToken(ctx, ref, state.TokenHash, "", time.Time{})
		if err != nil {
			return fmt.Errorf("clear refresh token: %w", err)
		}
		if cleared {
			return nil
		}
	}
	return fmt.Errorf("clear refresh token for %s: state kept changing", ref)
}

func (s *TokenService) issuePair(p domain.Principal, now time.Time) (*domain.TokenPair, string, error) {
	access, claims, err := s.Issuer.IssueAccessToken(p, now)
	if err != nil {
		return nil, "", err
	}

	refresh, err := s.Issuer.IssueRefreshToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  claims.Expiry(),
		RefreshExpiresAt: now.Add(s.refreshTTL()),
	}, cryptox.FingerprintToken(refresh), nil
}
