package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"opshop/internal/clock"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as JSON values whose Redis TTL matches the
// session expiry, so instances behind a load balancer share them.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	clock  clock.Clock
}

func NewRedisStore(rdb *redis.Client, prefix string, c clock.Clock) *RedisStore {
	if c == nil {
		c = clock.Real()
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: strings.Trim(prefix, ":") + ":session:",
		clock:  c,
	}
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.rdb.Get(ctx, r.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.Expired(r.clock.Now()) {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	snapshot := s.Clone()
	ttl := snapshot.ExpiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		return r.Delete(ctx, s.ID)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, r.prefix+s.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, r.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Cleanup is a no-op; Redis expires keys itself.
func (r *RedisStore) Cleanup(context.Context) (int, error) {
	return 0, nil
}
