package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type windowStore struct {
	redis  redis.UniversalClient
	prefix string
}

func (s *windowStore) key(rule, key string) string {
	if rule == "" {
		return s.prefix + ":" + key
	}
	return s.prefix + ":" + rule + ":" + key
}

type windowState struct {
	countBefore int64
	oldest      time.Time
	hasOldest   bool
}

// record prunes, counts, reads the oldest survivor, adds member and refreshes the
// TTL as one transaction.
func (s *windowStore) record(ctx context.Context, key string, now time.Time, window time.Duration, member string) (windowState, error) {
	nowMs := now.UnixMilli()
	cutoff := strconv.FormatInt(nowMs-window.Milliseconds(), 10)

	var (
		count  *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		count = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return windowState{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	st := windowState{countBefore: count.Val()}
	if z := oldest.Val(); len(z) > 0 {
		st.oldest = time.UnixMilli(int64(z[0].Score))
		st.hasOldest = true
	}
	return st, nil
}

func (s *windowStore) delete(ctx context.Context, keys ...string) error {
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
