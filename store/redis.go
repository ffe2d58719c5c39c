package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps the session slots in Redis, for daemon or kiosk
// deployments where several processes of the same installation share one
// session. Keys are namespaced by a caller-supplied prefix so multiple
// installations can share a Redis database.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Store backed by the given Redis client. prefix is
// prepended to every key; it must not be empty.
func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("[NewRedisStore] client is required")
	}
	if prefix == "" {
		return nil, errors.New("[NewRedisStore] prefix is required")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (rs *RedisStore) key(k string) string {
	return rs.prefix + ":" + k
}

func (rs *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := rs.client.Get(ctx, rs.key(key)).Result()
	if err == redis.Nil {
		return "", ErrAbsent
	}
	if err != nil {
		return "", errors.Wrap(err, "[RedisStore.Get]")
	}
	return v, nil
}

func (rs *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := rs.client.Set(ctx, rs.key(key), value, 0).Err(); err != nil {
		return errors.Wrap(err, "[RedisStore.Set]")
	}
	return nil
}

// Clear deletes the keys with a single DEL so concurrent readers never see a
// partially cleared session.
func (rs *RedisStore) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, rs.key(k))
	}
	if err := rs.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, "[RedisStore.Clear]")
	}
	return nil
}
