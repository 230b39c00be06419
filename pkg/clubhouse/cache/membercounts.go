package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	memberCountKeyPrefix = "club:membercnt"
	memberCountTTL       = 24 * time.Hour
)

// MemberCounts caches per-club member counts in Redis as a fast display hint.
// It mirrors the stored counter, so it inherits the counter's drift; readers
// that need the real number must fall back to the club document. A nil
// *MemberCounts is valid and turns every method into a no-op.
type MemberCounts struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewMemberCounts(rdb *redis.Client) *MemberCounts {
	return &MemberCounts{rdb: rdb, ttl: memberCountTTL}
}

func (c *MemberCounts) key(clubID string) string {
	return fmt.Sprintf("%s:%s", memberCountKeyPrefix, clubID)
}

// Get returns the cached count and whether the cache held a value.
func (c *MemberCounts) Get(ctx context.Context, clubID string) (int64, bool, error) {
	if c == nil {
		return 0, false, nil
	}
	val, err := c.rdb.Get(ctx, c.key(clubID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

// Set backfills the cached count after a read from the document store.
func (c *MemberCounts) Set(ctx context.Context, clubID string, count int64) error {
	if c == nil {
		return nil
	}
	return c.rdb.Set(ctx, c.key(clubID), count, c.ttl).Err()
}

// Incr bumps a warm cache entry. A cold cache stays cold and is refilled on
// the next read.
func (c *MemberCounts) Incr(ctx context.Context, clubID string, delta int64) error {
	if c == nil {
		return nil
	}
	k := c.key(clubID)
	exists, err := c.rdb.Exists(ctx, k).Result()
	if err != nil || exists == 0 {
		return err
	}
	if err := c.rdb.IncrBy(ctx, k, delta).Err(); err != nil {
		return err
	}
	return c.rdb.Expire(ctx, k, c.ttl).Err()
}

// Invalidate drops the cached count, forcing the next read to the store.
func (c *MemberCounts) Invalidate(ctx context.Context, clubID string) error {
	if c == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.key(clubID)).Err()
}
