package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
)

var ErrNotFound = errors.New("store: not found")

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres, redis, memory) implement this and expose the two repositories
// the token flows need.
//
// None of the operations require a transaction: every write that must be
// atomic is a single conditional statement in the driver.
type Store interface {
	Blacklist() Blacklist
	RefreshTokens() RefreshTokens

	// ApplyMigrations brings the schema up to date. Drivers without a
	// schema return nil.
	ApplyMigrations() error

	// Ping verifies the backing service is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

type Blacklist interface {
	// BlacklistToken records a revoked jti. Inserting a jti that is already
	// present is a no-op, not an error.
	BlacklistToken(ctx context.Context, e domain.BlacklistEntry) error

	// IsBlacklisted reports whether tokenID has an entry whose expiry is
	// still after now. Expired entries that have not been swept yet are
	// ignored.
	IsBlacklisted(ctx context.Context, tokenID string, now time.Time) (bool, error)

	// SweepExpired deletes every entry with ExpiresAt <= now and returns how
	// many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type RefreshTokens interface {
	// SetRefreshToken unconditionally replaces the principal's refresh state.
	// Used at login, where the previous session (if any) is superseded.
	SetRefreshToken(ctx context.Context, ref domain.PrincipalRef, tokenHash string, expiresAt time.Time) error

	// GetRefreshState returns the principal's state or ErrNotFound.
	GetRefreshState(ctx context.Context, ref domain.PrincipalRef) (domain.RefreshState, error)

	// FindRefreshState looks a state up by token fingerprint, or ErrNotFound.
	FindRefreshState(ctx context.Context, tokenHash string) (domain.RefreshState, error)

	// TrySwapRefreshToken replaces the state only if it still holds
	// expectedHash, atomically with respect to any concurrent swap. It
	// returns false, nil when someone else won. An empty newHash clears the
	// state.
	TrySwapRefreshToken(
		ctx context.Context,
		ref domain.PrincipalRef,
		expectedHash, newHash string,
		newExpiresAt time.Time,
	) (bool, error)

	// DeleteExpiredRefreshTokens is housekeeping; it returns rows removed.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}
