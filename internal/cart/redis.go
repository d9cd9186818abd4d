package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as a JSON document, an owner -> active session pointer,
// and a sorted set of sessions that may hold stock, scored by expiry for the sweeper.
type RedisStore struct {
	RDB redis.Cmdable
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	b, err := r.RDB.Get(ctx, fmt.Sprintf(redisx.KeyCartSession, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisStore) ActiveByOwner(ctx context.Context, ownerKey string) (*Session, error) {
	id, err := r.RDB.Get(ctx, fmt.Sprintf(redisx.KeyCartOwner, ownerKey)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusActive {
		return nil, ErrNotFound
	}
	return s, nil
}

// saveScript writes the document only if the stored version matches ARGV[1], and
// keeps the owner pointer and expiry index in step within the same call.
// ARGV: version, document, session id, mode (active|held|done), expiry ms, ttl seconds.
var saveScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local v = 0
if cur then v = tonumber(cjson.decode(cur)['version']) or 0 end
if v ~= tonumber(ARGV[1]) then return 0 end
if tonumber(ARGV[6]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[6])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
if ARGV[4] == 'active' then
  redis.call('SET', KEYS[2], ARGV[3])
elseif redis.call('GET', KEYS[2]) == ARGV[3] then
  redis.call('DEL', KEYS[2])
end
if ARGV[4] == 'done' then
  redis.call('ZREM', KEYS[3], ARGV[3])
else
  redis.call('ZADD', KEYS[3], ARGV[5], ARGV[3])
end
return 1
`)

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	next := *s
	next.Version = s.Version + 1
	b, err := json.Marshal(&next)
	if err != nil {
		return err
	}

	// Sessions that still hold stock stay indexed for the sweeper; settled ones
	// drop out of the index and age out after the archive TTL.
	mode, ttl := "active", time.Duration(0)
	switch {
	case s.Status == StatusActive:
	case s.pendingRelease():
		mode = "held"
	default:
		mode, ttl = "done", redisx.TTLCartArchive
	}

	keys := []string{
		fmt.Sprintf(redisx.KeyCartSession, s.ID),
		fmt.Sprintf(redisx.KeyCartOwner, s.Owner.Key()),
		redisx.KeyCartExpiry,
	}
	ok, err := saveScript.Run(ctx, r.RDB, keys,
		s.Version, b, s.ID, mode, s.ExpiresAt.UnixMilli(), int64(ttl/time.Second)).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return fmt.Errorf("%w: %s", ErrConflict, s.ID)
	}
	s.Version = next.Version
	return nil
}

func (r *RedisStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Session, error) {
	ids, err := r.RDB.ZRangeByScore(ctx, redisx.KeyCartExpiry, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.pendingRelease() {
			out = append(out, s)
		}
	}
	return out, nil
}
