package redis_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/internal/auth/store"
	redisstore "github.com/aussiebroadwan/petauth/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/petauth/internal/auth/store/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	st, err := redisstore.NewStore(context.Background(), redisstore.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return st, mr
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		st, _ := newTestStore(t)
		return st
	})
}

func TestKeysArePrefixed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := redisstore.NewStoreWithClient(client, "tenant-a:")
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.Blacklist().BlacklistToken(ctx, domain.BlacklistEntry{
		TokenID:       "jti-1",
		PrincipalID:   "7",
		PrincipalKind: domain.KindAdministrator,
		BlacklistedAt: now,
		ExpiresAt:     now.Add(time.Minute),
		Reason:        domain.LogoutReason,
	}))

	require.True(t, mr.Exists("{tenant-a}:bl:jti:jti-1"))
	require.Equal(t, domain.LogoutReason, mr.HGet("{tenant-a}:bl:jti:jti-1", "reason"))

	// Closing a store built around a caller's client must not close it.
	require.NoError(t, st.Close())
	require.NoError(t, client.Ping(ctx).Err())
}

func TestEntriesCarryTTL(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.Blacklist().BlacklistToken(ctx, domain.BlacklistEntry{
		TokenID:       "jti-ttl",
		PrincipalID:   "7",
		PrincipalKind: domain.KindRegularUser,
		BlacklistedAt: now,
		ExpiresAt:     now.Add(15 * time.Minute),
	}))

	ttl := mr.TTL(redisstore.DefaultPrefix+"bl:jti:jti-ttl")
	require.Greater(t, ttl, 15*time.Minute)
	require.LessOrEqual(t, ttl, 15*time.Minute+time.Hour)
}

func TestFindIgnoresStaleIndex(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()
	ref := domain.PrincipalRef{Kind: domain.KindRegularUser, ID: "9"}

	require.NoError(t, st.RefreshTokens().SetRefreshToken(ctx, ref, "h1", time.Now().Add(time.Hour)))

	// Point a second hash at the same principal without going through the
	// store, as a crashed writer could.
	require.NoError(t, mr.Set(redisstore.DefaultPrefix+"rt:hash:ghost", "user:9"))

	_, err := st.RefreshTokens().FindRefreshState(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPingFailsWhenServerGone(t *testing.T) {
	st, mr := newTestStore(t)
	mr.Close()
	require.Error(t, st.Ping(context.Background()))
}

func TestKeysShareHashTag(t *testing.T) {
	for prefix, tag := range map[string]string{
		"":                "{petauth}:",
		"tenant-a:":       "{tenant-a}:",
		"tenant-b":        "{tenant-b}:",
		"app:{tenant-c}:": "app:{tenant-c}:",
	} {
		t.Run(tag, func(t *testing.T) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })

			st := redisstore.NewStoreWithClient(client, prefix)
			ctx := context.Background()
			now := time.Now()
			ref := domain.PrincipalRef{Kind: domain.KindRegularUser, ID: "3"}

			require.NoError(t, st.Blacklist().BlacklistToken(ctx, domain.BlacklistEntry{
				TokenID:       "jti-1",
				PrincipalID:   "3",
				PrincipalKind: domain.KindRegularUser,
				BlacklistedAt: now,
				ExpiresAt:     now.Add(time.Minute),
			}))
			require.NoError(t, st.RefreshTokens().SetRefreshToken(ctx, ref, "h1", now.Add(time.Hour)))

			keys := mr.Keys()
			require.NotEmpty(t, keys)
			for _, k := range keys {
				require.True(t, strings.HasPrefix(k, tag), "key %s outside %s", k, tag)
			}
		})
	}
}

func TestSweepCountsOnlyDeletedEntries(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	bl := st.Blacklist()

	add := func(jti string, exp time.Time) {
		require.NoError(t, bl.BlacklistToken(ctx, domain.BlacklistEntry{
			TokenID:       jti,
			PrincipalID:   "7",
			PrincipalKind: domain.KindRegularUser,
			BlacklistedAt: now,
			ExpiresAt:     exp,
		}))
	}

	t.Run("entry still held", func(t *testing.T) {
		add("held", now.Add(-time.Second))

		n, err := bl.SweepExpired(ctx, now)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
		require.False(t, mr.Exists(redisstore.DefaultPrefix+"bl:jti:held"))
	})

	t.Run("entry already dropped by redis", func(t *testing.T) {
		add("gone", now.Add(time.Minute))

		// Past the key TTL, so Redis has removed the entry but not its
		// index member.
		mr.FastForward(2 * time.Hour)
		require.False(t, mr.Exists(redisstore.DefaultPrefix+"bl:jti:gone"))

		n, err := bl.SweepExpired(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		require.Zero(t, n)

		n, err = bl.SweepExpired(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		require.Zero(t, n)
	})
}
