package redis

import "github.com/redis/go-redis/v9"

// Scripts build some key names from ARGV prefixes. That is only safe on a
// cluster because every key shares the keyspace hash tag.

// KEYS[1] entry, KEYS[2] expiry index
// ARGV jti, expires_ms, ttl_ms, principal_id, principal_kind, reason, blacklisted_ms
var blacklistInsertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'principal_id', ARGV[4],
	'principal_kind', ARGV[5],
	'reason', ARGV[6],
	'blacklisted_at', ARGV[7],
	'expires_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

// KEYS[1] expiry index
// ARGV now_ms, entry key prefix
// Index members whose entry Redis already expired are dropped uncounted.
var blacklistSweepScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local n = 0
for _, id in ipairs(ids) do
	n = n + redis.call('DEL', ARGV[2] .. id)
end
if #ids > 0 then
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
return n
`)

// KEYS[1] state, KEYS[2] expiry index
// ARGV new_hash, expires_ms, member, hash key prefix, ttl_ms
var refreshSetScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[1], 'token_hash')
if old then
	redis.call('DEL', ARGV[4] .. old)
end
redis.call('HSET', KEYS[1], 'token_hash', ARGV[1], 'expires_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
redis.call('SET', ARGV[4] .. ARGV[1], ARGV[3], 'PX', ARGV[5])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// KEYS[1] state, KEYS[2] expiry index
// ARGV expected_hash, new_hash ('' clears), expires_ms, member, hash key prefix, ttl_ms
var refreshSwapScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'token_hash')
if not cur or cur ~= ARGV[1] then
	return 0
end
redis.call('DEL', ARGV[5] .. cur)
if ARGV[2] == '' then
	redis.call('DEL', KEYS[1])
	redis.call('ZREM', KEYS[2], ARGV[4])
	return 1
end
redis.call('HSET', KEYS[1], 'token_hash', ARGV[2], 'expires_at', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
redis.call('SET', ARGV[5] .. ARGV[2], ARGV[4], 'PX', ARGV[6])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
return 1
`)

// KEYS[1] expiry index
// ARGV now_ms, state key prefix, hash key prefix
var refreshDeleteExpiredScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local n = 0
for _, m in ipairs(members) do
	local key = ARGV[2] .. m
	local st = redis.call('HMGET', key, 'token_hash', 'expires_at')
	if st[1] and st[2] and tonumber(st[2]) <= tonumber(ARGV[1]) then
		redis.call('DEL', key)
		redis.call('DEL', ARGV[3] .. st[1])
		n = n + 1
	end
	redis.call('ZREM', KEYS[1], m)
end
return n
`)
