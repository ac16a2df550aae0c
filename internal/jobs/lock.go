package job

import (
	"context"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a Locker backed by SET NX PX.
type RedisLock struct {
	rdb redis.UniversalClient
}

func NewRedisLock(rdb redis.UniversalClient) *RedisLock {
	return &RedisLock{rdb: rdb}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token, err := gonanoid.New()
	if err != nil {
		return nil, false, err
	}
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		// only the holder may release; an expired lock may belong to someone else
		releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{key}, token)
	}
	return release, true, nil
}
