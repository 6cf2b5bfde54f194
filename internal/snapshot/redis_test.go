package snapshot

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisKV(t *testing.T) *RedisKV {
	t.Helper()
	server := miniredis.RunT(t)
	kv, err := NewRedisKV(server.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestRedisKVRoundTrip(t *testing.T) {
	kv := newTestRedisKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Save(ctx, "k1", []byte("payload")))

	blob, found, err := kv.Load(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("payload"), blob)
}

func TestRedisKVMissingKey(t *testing.T) {
	kv := newTestRedisKV(t)

	_, found, err := kv.Load(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisKVDelete(t *testing.T) {
	kv := newTestRedisKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Save(ctx, "k1", []byte("payload")))
	require.NoError(t, kv.Delete(ctx, "k1"))

	_, found, err := kv.Load(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreOverRedis(t *testing.T) {
	kv := newTestRedisKV(t)
	store := NewStore(kv)

	sess := seededSession(t)
	require.NoError(t, store.Capture(context.Background(), sess))

	state, err := store.Restore(context.Background(), sess.ID())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, sess.ID(), state.ID)

	// Consumed after restore.
	state, err = store.Restore(context.Background(), sess.ID())
	require.NoError(t, err)
	assert.Nil(t, state)
}
