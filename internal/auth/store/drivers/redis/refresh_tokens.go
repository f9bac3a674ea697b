package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

type refreshTokensRepo struct {
	c    redis.UniversalClient
	keys keyspace
}

func (r *refreshTokensRepo) SetRefreshToken(
	ctx context.Context,
	ref domain.PrincipalRef,
	tokenHash string,
	expiresAt time.Time,
) error {
	m := member(ref)
	err := refreshSetScript.Run(ctx, r.c,
		[]string{r.keys.refreshState(m), r.keys.refreshExpiry()},
		tokenHash,
		ms(expiresAt),
		m,
		r.keys.refreshHashPrefix(),
		ttlFor(expiresAt, time.Now()),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set refresh token for %s: %w", m, err)
	}
	return nil
}

func (r *refreshTokensRepo) GetRefreshState(
	ctx context.Context,
	ref domain.PrincipalRef,
) (domain.RefreshState, error) {
	return r.load(ctx, ref)
}

func (r *refreshTokensRepo) FindRefreshState(ctx context.Context, tokenHash string) (domain.RefreshState, error) {
	m, err := r.c.Get(ctx, r.keys.refreshHash(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.RefreshState{}, store.ErrNotFound
	}
	if err != nil {
		return domain.RefreshState{}, fmt.Errorf("redis: find refresh token: %w", err)
	}

	ref, err := parseMember(m)
	if err != nil {
		return domain.RefreshState{}, err
	}

	st, err := r.load(ctx, ref)
	if err != nil {
		return domain.RefreshState{}, err
	}
	// The index can briefly outlive a rotation; the state is authoritative.
	if st.TokenHash != tokenHash {
		return domain.RefreshState{}, store.ErrNotFound
	}
	return st, nil
}

func (r *refreshTokensRepo) TrySwapRefreshToken(
	ctx context.Context,
	ref domain.PrincipalRef,
	expectedHash, newHash string,
	newExpiresAt time.Time,
) (bool, error) {
	m := member(ref)
	n, err := refreshSwapScript.Run(ctx, r.c,
		[]string{r.keys.refreshState(m), r.keys.refreshExpiry()},
		expectedHash,
		newHash,
		ms(newExpiresAt),
		m,
		r.keys.refreshHashPrefix(),
		ttlFor(newExpiresAt, time.Now()),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis: swap refresh token for %s: %w", m, err)
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	n, err := refreshDeleteExpiredScript.Run(ctx, r.c,
		[]string{r.keys.refreshExpiry()},
		ms(now),
		r.keys.refreshStatePrefix(),
		r.keys.refreshHashPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: delete expired refresh tokens: %w", err)
	}
	return n, nil
}

func (r *refreshTokensRepo) load(ctx context.Context, ref domain.PrincipalRef) (domain.RefreshState, error) {
	vals, err := r.c.HMGet(ctx, r.keys.refreshState(member(ref)), "token_hash", "expires_at").Result()
	if err != nil {
		return domain.RefreshState{}, fmt.Errorf("redis: load refresh state: %w", err)
	}

	hash, _ := vals[0].(string)
	rawExp, _ := vals[1].(string)
	if hash == "" || rawExp == "" {
		return domain.RefreshState{}, store.ErrNotFound
	}

	exp, err := strconv.ParseInt(rawExp, 10, 64)
	if err != nil {
		return domain.RefreshState{}, fmt.Errorf("redis: corrupt refresh state for %s: %w", member(ref), err)
	}

	return domain.RefreshState{
		Principal: ref,
		TokenHash: hash,
		ExpiresAt: time.UnixMilli(exp).UTC(),
	}, nil
}
