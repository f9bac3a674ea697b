// Package storetest holds the behaviour every store driver must share. Each
// driver's tests call Run with a constructor for a fresh, migrated store.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/internal/auth/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It should register its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against the driver produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Blacklist", func(t *testing.T) { runBlacklist(t, newStore) })
	t.Run("RefreshTokens", func(t *testing.T) { runRefreshTokens(t, newStore) })
	t.Run("ConcurrentSwap", func(t *testing.T) { runConcurrentSwap(t, newStore) })
}

// The clock is truncated to milliseconds, the coarsest resolution any
// driver stores.
func baseTime() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func entry(jti string, blacklistedAt, expiresAt time.Time) domain.BlacklistEntry {
	return domain.BlacklistEntry{
		TokenID:       jti,
		PrincipalID:   "42",
		PrincipalKind: domain.KindRegularUser,
		BlacklistedAt: blacklistedAt,
		ExpiresAt:     expiresAt,
		Reason:        domain.LogoutReason,
	}
}

func runBlacklist(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("immediate revocation", func(t *testing.T) {
		bl := newStore(t).Blacklist()
		now := baseTime()

		ok, err := bl.IsBlacklisted(ctx, "jti-1", now)
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, bl.BlacklistToken(ctx, entry("jti-1", now, now.Add(15*time.Minute))))

		ok, err = bl.IsBlacklisted(ctx, "jti-1", now)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("insert is idempotent", func(t *testing.T) {
		bl := newStore(t).Blacklist()
		now := baseTime()
		e := entry("jti-dup", now, now.Add(time.Hour))

		require.NoError(t, bl.BlacklistToken(ctx, e))
		require.NoError(t, bl.BlacklistToken(ctx, e))

		ok, err := bl.IsBlacklisted(ctx, "jti-dup", now)
		require.NoError(t, err)
		require.True(t, ok)

		n, err := bl.SweepExpired(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		require.Equal(t, int64(1), n, "a duplicate insert must not create a second entry")
	})

	t.Run("first insert wins", func(t *testing.T) {
		bl := newStore(t).Blacklist()
		now := baseTime()

		require.NoError(t, bl.BlacklistToken(ctx, entry("jti-x", now, now.Add(time.Minute))))
		require.NoError(t, bl.BlacklistToken(ctx, entry("jti-x", now, now.Add(time.Hour))))

		ok, err := bl.IsBlacklisted(ctx, "jti-x", now.Add(2*time.Minute))
		require.NoError(t, err)
		require.False(t, ok, "the second insert is ignored, including its expiry")
	})

	t.Run("expired entries do not count", func(t *testing.T) {
		bl := newStore(t).Blacklist()
		now := baseTime()

		require.NoError(t, bl.BlacklistToken(ctx, entry("old", now.Add(-time.Hour), now.Add(-time.Second))))
		require.NoError(t, bl.BlacklistToken(ctx, entry("edge", now.Add(-time.Hour), now)))

		for _, id := range []string{"old", "edge"} {
			ok, err := bl.IsBlacklisted(ctx, id, now)
			require.NoError(t, err)
			require.False(t, ok, id)
		}
	})

	t.Run("sweep precision", func(t *testing.T) {
		bl := newStore(t).Blacklist()
		now := baseTime()

		past := []time.Duration{-2 * time.Hour, -time.Second, 0}
		future := []time.Duration{time.Second, time.Hour}
		for i, d := range past {
			require.NoError(t, bl.BlacklistToken(ctx, entry(fmt.Sprintf("past-%d", i), now.Add(-3*time.Hour), now.Add(d))))
		}
		for i, d := range future {
			require.NoError(t, bl.BlacklistToken(ctx, entry(fmt.Sprintf("future-%d", i), now, now.Add(d))))
		}

		n, err := bl.SweepExpired(ctx, now)
		require.NoError(t, err)
		require.Equal(t, int64(len(past)), n)

		for i := range future {
			ok, err := bl.IsBlacklisted(ctx, fmt.Sprintf("future-%d", i), now)
			require.NoError(t, err)
			require.True(t, ok, "sweep must not touch live entries")
		}

		n, err = bl.SweepExpired(ctx, now)
		require.NoError(t, err)
		require.Zero(t, n, "second sweep has nothing left to remove")
	})
}

func runRefreshTokens(t *testing.T, newStore Factory) {
	ctx := context.Background()
	admin := domain.PrincipalRef{Kind: domain.KindAdministrator, ID: "1"}
	user := domain.PrincipalRef{Kind: domain.KindRegularUser, ID: "1"}

	t.Run("missing state", func(t *testing.T) {
		rt := newStore(t).RefreshTokens()

		_, err := rt.GetRefreshState(ctx, admin)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = rt.FindRefreshState(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)

		ok, err := rt.TrySwapRefreshToken(ctx, admin, "nope", "h2", baseTime().Add(time.Hour))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("set get find", func(t *testing.T) {
		rt := newStore(t).RefreshTokens()
		exp := baseTime().Add(7 * 24 * time.Hour)

		require.NoError(t, rt.SetRefreshToken(ctx, admin, "h1", exp))

		st, err := rt.GetRefreshState(ctx, admin)
		require.NoError(t, err)
		require.Equal(t, admin, st.Principal)
		require.Equal(t, "h1", st.TokenHash)
		require.WithinDuration(t, exp, st.ExpiresAt, time.Millisecond)

		st, err = rt.FindRefreshState(ctx, "h1")
		require.NoError(t, err)
		require.Equal(t, admin, st.Principal)
	})

	t.Run("kinds do not collide", func(t *testing.T) {
		rt := newStore(t).RefreshTokens()
		exp := baseTime().Add(time.Hour)

		require.NoError(t, rt.SetRefreshToken(ctx, admin, "admin-h", exp))
		require.NoError(t, rt.SetRefreshToken(ctx, user, "user-h", exp))

		a, err := rt.GetRefreshState(ctx, admin)
		require.NoError(t, err)
		u, err := rt.GetRefreshState(ctx, user)
		require.NoError(t, err)
		require.Equal(t, "admin-h", a.TokenHash)
		require.Equal(t, "user-h", u.TokenHash)
	})

	t.Run("set replaces previous session", func(t *testing.T) {
		rt := newStore(t).RefreshTokens()
		exp := baseTime().Add(time.Hour)

		require.NoError(t, rt.SetRefreshToken(ctx, user, "first", exp))
		require.NoError(t, rt.SetRefreshToken(ctx, user, "second", exp))

		_, err := rt.FindRefreshState(ctx, "first")
		require.ErrorIs(t, err, store.ErrNotFound)

		st, err := rt.GetRefreshState(ctx, user)
		require.NoError(t, err)
		require.Equal(t, "second", st.TokenHash)
	})

	t.Run("swap is single use", func(t *testing.T) {
		rt := newStore(t).RefreshTokens()
		now := baseTime()
		require.NoError(t, rt.SetRefreshToken(ctx, user, "r1", now.Add(time.Hour)))

		ok, err := rt.TrySwapRefreshToken(ctx, user, "r1", "r2", now.Add(2*time.Hour))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = rt.TrySwapRefreshToken(ctx, user, "r1", "r3", now.Add(2*time.Hour))
		require.NoError(t, err)
		require.False(t, ok, "the stale value must lose")

		st, err := rt.GetRefreshState(ctx, user)
		require.NoError(t, err)
		require.Equal(t, "r2", st.TokenHash)
		require.WithinDuration(t, now.Add(2*time.Hour), st.ExpiresAt, time.Millisecond)

		_, err = rt.FindRefreshState(ctx, "r1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("swap to empty clears", func(t *testing.T) {
		rt := newStore(t).RefreshTokens()
		require.NoError(t, rt.SetRefreshToken(ctx, user, "r1", baseTime().Add(time.Hour)))

		ok, err := rt.TrySwapRefreshToken(ctx, user, "r1", "", time.Time{})
		require.NoError(t, err)
		require.True(t, ok)

		_, err = rt.GetRefreshState(ctx, user)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = rt.FindRefreshState(ctx, "r1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete expired", func(t *testing.T) {
		rt := newStore(t).RefreshTokens()
		now := baseTime()

		require.NoError(t, rt.SetRefreshToken(ctx, admin, "stale", now.Add(-time.Minute)))
		require.NoError(t, rt.SetRefreshToken(ctx, user, "live", now.Add(time.Hour)))

		n, err := rt.DeleteExpiredRefreshTokens(ctx, now)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		_, err = rt.GetRefreshState(ctx, admin)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = rt.GetRefreshState(ctx, user)
		require.NoError(t, err)
	})
}

func runConcurrentSwap(t *testing.T, newStore Factory) {
	const racers = 16
	ctx := context.Background()
	rt := newStore(t).RefreshTokens()
	ref := domain.PrincipalRef{Kind: domain.KindRegularUser, ID: "racer"}
	now := baseTime()

	require.NoError(t, rt.SetRefreshToken(ctx, ref, "seed", now.Add(time.Hour)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		start   = make(chan struct{})
	)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			next := fmt.Sprintf("next-%d", i)
			ok, err := rt.TrySwapRefreshToken(ctx, ref, "seed", next, now.Add(2*time.Hour))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners = append(winners, next)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1, "exactly one concurrent swap may succeed")

	st, err := rt.GetRefreshState(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, winners[0], st.TokenHash)
}
