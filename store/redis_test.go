package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/athishulleri01/erp-session-core/store"
)

func newRedisStore(t *testing.T) *store.RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	rs, err := store.NewRedisStore(rdb, "erp-session-test")
	require.NoError(t, err)
	return rs
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	rs := newRedisStore(t)

	_, err := rs.Get(ctx, store.KeyRenewalCredential)
	require.ErrorIs(t, err, store.ErrAbsent)

	require.NoError(t, rs.Set(ctx, store.KeyRenewalCredential, "renew-1"))

	v, err := rs.Get(ctx, store.KeyRenewalCredential)
	require.NoError(t, err)
	require.Equal(t, "renew-1", v)
}

func TestRedisStoreClear(t *testing.T) {
	ctx := context.Background()
	rs := newRedisStore(t)

	for _, k := range store.SessionKeys() {
		require.NoError(t, rs.Set(ctx, k, "value"))
	}
	require.NoError(t, rs.Clear(ctx, store.SessionKeys()...))

	for _, k := range store.SessionKeys() {
		_, err := rs.Get(ctx, k)
		require.ErrorIs(t, err, store.ErrAbsent, "key %q", k)
	}
}

func TestRedisStoreRequiresPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	_, err := store.NewRedisStore(rdb, "")
	require.Error(t, err)

	_, err = store.NewRedisStore(nil, "prefix")
	require.Error(t, err)
}
