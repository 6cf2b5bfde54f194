package snapshot

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codefionn/flowpilot/internal/consts"
)

// redisKeyLifetime keeps dead snapshots from accumulating in the server.
// The store still enforces its own freshness bound on restore; this is only
// server-side garbage collection.
const redisKeyLifetime = 10 * consts.SnapshotTTL

// RedisKV persists snapshots in Redis, for deployments where the process
// serving the reload is not the one that captured the snapshot.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV connects to the Redis server at addr
func NewRedisKV(addr string) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisKV{client: client}, nil
}

func redisKey(key string) string {
	return "flowpilot:snapshot:" + key
}

func (r *RedisKV) Save(ctx context.Context, key string, blob []byte) error {
	return r.client.Set(ctx, redisKey(key), blob, redisKeyLifetime).Err()
}

func (r *RedisKV) Load(ctx context.Context, key string) ([]byte, bool, error) {
	blob, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisKey(key)).Err()
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}
