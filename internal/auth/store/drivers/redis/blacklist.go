package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/redis/go-redis/v9"
)

type blacklistRepo struct {
	c    redis.UniversalClient
	keys keyspace
}

func (r *blacklistRepo) BlacklistToken(ctx context.Context, e domain.BlacklistEntry) error {
	err := blacklistInsertScript.Run(ctx, r.c,
		[]string{r.keys.blacklistEntry(e.TokenID), r.keys.blacklistExpiry()},
		e.TokenID,
		ms(e.ExpiresAt),
		ttlFor(e.ExpiresAt, e.BlacklistedAt),
		e.PrincipalID,
		string(e.PrincipalKind),
		e.Reason,
		ms(e.BlacklistedAt),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: blacklist %s: %w", e.TokenID, err)
	}
	return nil
}

// IsBlacklisted compares against the stored expiry rather than trusting the
// key TTL, since keys outlive their entry by the retention window.
func (r *blacklistRepo) IsBlacklisted(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	raw, err := r.c.HGet(ctx, r.keys.blacklistEntry(tokenID), "expires_at").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis: check blacklist %s: %w", tokenID, err)
	}

	exp, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("redis: corrupt blacklist entry %s: %w", tokenID, err)
	}
	return exp > ms(now), nil
}

func (r *blacklistRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := blacklistSweepScript.Run(ctx, r.c,
		[]string{r.keys.blacklistExpiry()},
		ms(now),
		r.keys.blacklistEntryPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: sweep blacklist: %w", err)
	}
	return n, nil
}
