package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokeStatusMissing  int64 = 0
	revokeStatusRevoked  int64 = 1
	revokeStatusMismatch int64 = 2
)

// Deletes the refresh record only when it still belongs to the presented
// principal/jti. Exactly one concurrent caller can observe status 1 for a given
// record, which is what makes rotation single-use.
const revokeRefreshScript = `
local fields = redis.call("HMGET", KEYS[1], "pid", "jti")
if not fields[1] then
  redis.call("SREM", KEYS[2], ARGV[3])
  return 0
end
if fields[1] ~= ARGV[1] or fields[2] ~= ARGV[2] then
  return 2
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[3])
return 1
`

var revokeRefreshLua = redis.NewScript(revokeRefreshScript)

// KEYS[1] principal set, ARGV[1] record key prefix. Returns how many live records
// were deleted.
const revokeAllRefreshScript = `
local hashes = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, h in ipairs(hashes) do
  removed = removed + redis.call("DEL", ARGV[1] .. h)
end
redis.call("DEL", KEYS[1])
return removed
`

var revokeAllRefreshLua = redis.NewScript(revokeAllRefreshScript)

type refreshRecord struct {
	PrincipalID string
	JTI         string
}

// refreshStore owns the refresh-token keys in the shared store.
type refreshStore struct {
	redis  redis.UniversalClient
	prefix string
}

func (s *refreshStore) recordKey(hash string) string {
	return s.prefix + ":rt:" + hash
}

func (s *refreshStore) principalKey(principalID string) string {
	return s.prefix + ":rtp:" + principalID
}

func (s *refreshStore) principalPattern() string {
	return s.prefix + ":rtp:*"
}

func (s *refreshStore) save(ctx context.Context, hash string, rec refreshRecord, ttl time.Duration) error {
	recordKey := s.recordKey(hash)
	principalKey := s.principalKey(rec.PrincipalID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordKey, "pid", rec.PrincipalID, "jti", rec.JTI)
		pipe.PExpire(ctx, recordKey, ttl)
		pipe.SAdd(ctx, principalKey, hash)
		pipe.PExpire(ctx, principalKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// load returns redis.Nil when no record exists.
func (s *refreshStore) load(ctx context.Context, hash string) (refreshRecord, error) {
	vals, err := s.redis.HMGet(ctx, s.recordKey(hash), "pid", "jti").Result()
	if err != nil {
		return refreshRecord{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return refreshRecord{}, redis.Nil
	}
	pid, _ := vals[0].(string)
	jti, _ := vals[1].(string)
	return refreshRecord{PrincipalID: pid, JTI: jti}, nil
}

func (s *refreshStore) revoke(ctx context.Context, hash string, rec refreshRecord) (int64, error) {
	res, err := revokeRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(hash), s.principalKey(rec.PrincipalID)},
		rec.PrincipalID,
		rec.JTI,
		hash,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res, nil
}

// revokeAll removes every record listed in the principal set and then the set
// itself in one script, so a token saved concurrently either lands before the
// sweep and is revoked, or after it in a fresh set that the next sweep reaches.
func (s *refreshStore) revokeAll(ctx context.Context, principalID string) (int, error) {
	n, err := revokeAllRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.principalKey(principalID)},
		s.recordKey(""),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// pruneSet removes members of one principal set whose record has expired.
func (s *refreshStore) pruneSet(ctx context.Context, principalKey string) (int, error) {
	hashes, err := s.redis.SMembers(ctx, principalKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	exists := make([]*redis.IntCmd, len(hashes))
	for i, h := range hashes {
		exists[i] = pipe.Exists(ctx, s.recordKey(h))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	stale := make([]interface{}, 0, len(hashes))
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			stale = append(stale, hashes[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	removed, err := s.redis.SRem(ctx, principalKey, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(removed), nil
}

func (s *refreshStore) scanPrincipalSets(ctx context.Context, cursor uint64, count int64) ([]string, uint64, error) {
	keys, next, err := s.redis.Scan(ctx, cursor, s.principalPattern(), count).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return keys, next, nil
}
