// Package redis stores revocations and refresh state in Redis. Every write
// that must be atomic runs as a Lua script; expiry-ordered sorted sets make
// sweeps report exact counts.
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key this driver writes.
const DefaultPrefix = "{petauth}:"

// retention keeps keys around for a while after their logical expiry. A
// sweep inside that window deletes and counts them; after it Redis has
// already dropped them and the sweep only cleans the index.
const retention = time.Hour

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	client redis.UniversalClient
	owned  bool
	keys   keyspace
}

var _ store.Store = (*Store)(nil)

// NewStore dials Redis and checks the connection.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	s := NewStoreWithClient(client, opts.Prefix)
	s.owned = true
	return s, nil
}

// NewStoreWithClient wraps an existing client. Close leaves it open.
func NewStoreWithClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, keys: newKeyspace(prefix)}
}

func (s *Store) Blacklist() store.Blacklist         { return &blacklistRepo{c: s.client, keys: s.keys} }
func (s *Store) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{c: s.client, keys: s.keys} }

func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

// keyspace prefixes every key with a hash tag so all of them land in one
// cluster slot. Prefixes without a tag are wrapped: "tenant-a:" becomes
// "{tenant-a}:".
type keyspace string

func newKeyspace(prefix string) keyspace {
	if open := strings.IndexByte(prefix, '{'); open >= 0 && strings.IndexByte(prefix[open:], '}') > 1 {
		return keyspace(prefix)
	}
	return keyspace("{" + strings.TrimSuffix(prefix, ":") + "}:")
}

func (k keyspace) blacklistEntryPrefix() string { return string(k) + "bl:jti:" }
func (k keyspace) blacklistEntry(jti string) string {
	return k.blacklistEntryPrefix() + jti
}
func (k keyspace) blacklistExpiry() string { return string(k) + "bl:expiry" }

func (k keyspace) refreshStatePrefix() string { return string(k) + "rt:state:" }
func (k keyspace) refreshState(member string) string {
	return k.refreshStatePrefix() + member
}
func (k keyspace) refreshHashPrefix() string { return string(k) + "rt:hash:" }
func (k keyspace) refreshHash(hash string) string {
	return k.refreshHashPrefix() + hash
}
func (k keyspace) refreshExpiry() string { return string(k) + "rt:expiry" }

// member encodes a principal as "kind:id". Kinds never contain ':' so ids
// may.
func member(ref domain.PrincipalRef) string { return ref.String() }

func parseMember(s string) (domain.PrincipalRef, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return domain.PrincipalRef{}, errors.New("redis: malformed principal member " + s)
	}
	k, err := domain.ParsePrincipalKind(kind)
	if err != nil {
		return domain.PrincipalRef{}, err
	}
	return domain.PrincipalRef{Kind: k, ID: id}, nil
}

func ms(t time.Time) int64 { return t.UnixMilli() }

// ttlFor returns how long a key for something expiring at exp should live,
// measured from from.
func ttlFor(exp, from time.Time) int64 {
	d := max(exp.Sub(from), 0) + retention
	return d.Milliseconds()
}
