package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] record, KEYS[2] principal zset, KEYS[3..] device and address sets.
// Returns 1 when the record existed.
const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
for i = 3, #KEYS do
  redis.call("SREM", KEYS[i], ARGV[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// sessionStore owns the session keys in the shared store.
type sessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func (s *sessionStore) recordKey(id string) string {
	return s.prefix + ":s:" + id
}

func (s *sessionStore) principalKey(principalID string) string {
	return s.prefix + ":sp:" + principalID
}

func (s *sessionStore) deviceKey(fingerprint string) string {
	return s.prefix + ":sd:" + fingerprint
}

func (s *sessionStore) ipKey(ipHash string) string {
	return s.prefix + ":si:" + ipHash
}

func (s *sessionStore) indexKeys(r *Record) []string {
	keys := []string{s.recordKey(r.ID), s.principalKey(r.PrincipalID)}
	if r.DeviceFingerprint != "" {
		keys = append(keys, s.deviceKey(r.DeviceFingerprint))
	}
	if r.IPHash != "" {
		keys = append(keys, s.ipKey(r.IPHash))
	}
	return keys
}

func (s *sessionStore) save(ctx context.Context, r *Record, ttl time.Duration) error {
	data, err := encodeRecord(r)
	if err != nil {
		return err
	}
	principalKey := s.principalKey(r.PrincipalID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(r.ID), data, ttl)
		pipe.ZAdd(ctx, principalKey, redis.Z{Score: float64(r.LastActivity.UnixMilli()), Member: r.ID})
		pipe.PExpire(ctx, principalKey, ttl)
		if r.DeviceFingerprint != "" {
			pipe.SAdd(ctx, s.deviceKey(r.DeviceFingerprint), r.ID)
			pipe.PExpire(ctx, s.deviceKey(r.DeviceFingerprint), ttl)
		}
		if r.IPHash != "" {
			pipe.SAdd(ctx, s.ipKey(r.IPHash), r.ID)
			pipe.PExpire(ctx, s.ipKey(r.IPHash), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// touch rewrites an existing record with a fresh TTL, moves its score and renews
// every index the record belongs to. It never resurrects a record deleted
// concurrently; in that case it returns redis.Nil.
func (s *sessionStore) touch(ctx context.Context, r *Record, ttl time.Duration) error {
	data, err := encodeRecord(r)
	if err != nil {
		return err
	}
	principalKey := s.principalKey(r.PrincipalID)

	var set *redis.BoolCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetXX(ctx, s.recordKey(r.ID), data, ttl)
		pipe.ZAddXX(ctx, principalKey, redis.Z{Score: float64(r.LastActivity.UnixMilli()), Member: r.ID})
		pipe.PExpire(ctx, principalKey, ttl)
		if r.DeviceFingerprint != "" {
			pipe.PExpire(ctx, s.deviceKey(r.DeviceFingerprint), ttl)
		}
		if r.IPHash != "" {
			pipe.PExpire(ctx, s.ipKey(r.IPHash), ttl)
		}
		return nil
	})
	if set != nil && errors.Is(set.Err(), redis.Nil) {
		return redis.Nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// load returns redis.Nil when no record exists.
func (s *sessionStore) load(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeRecord(data)
}

// loadMany fetches records for ids in one round trip. Missing ids are returned
// separately so callers can prune the index they came from.
func (s *sessionStore) loadMany(ctx context.Context, ids []string) ([]*Record, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]*Record, 0, len(ids))
	var missing []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		rec, err := decodeRecord([]byte(raw))
		if err != nil {
			missing = append(missing, ids[i])
			continue
		}
		records = append(records, rec)
	}
	return records, missing, nil
}

// remove unwinds a record and all of its index memberships. It reports whether the
// record still existed.
func (s *sessionStore) remove(ctx context.Context, r *Record) (bool, error) {
	existed, err := deleteSessionLua.Run(ctx, s.redis, s.indexKeys(r), r.ID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return existed == 1, nil
}

func (s *sessionStore) principalSessionIDs(ctx context.Context, principalID string) ([]string, error) {
	ids, err := s.redis.ZRange(ctx, s.principalKey(principalID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (s *sessionStore) deviceSessionIDs(ctx context.Context, fingerprint string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.deviceKey(fingerprint)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (s *sessionStore) prunePrincipal(ctx context.Context, principalID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := s.redis.ZRem(ctx, s.principalKey(principalID), members...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *sessionStore) pruneDevice(ctx context.Context, fingerprint string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := s.redis.SRem(ctx, s.deviceKey(fingerprint), members...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *sessionStore) dropPrincipal(ctx context.Context, principalID string) error {
	if err := s.redis.Del(ctx, s.principalKey(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
