package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/voicehub/types"
)

// ConversationLocker 在对话创建路径上提供跨实例互斥。
// 单实例部署时 singleflight 已经足够，locker 可以为 nil。
type ConversationLocker interface {
	// Lock 获取 key 上的锁，返回释放函数。锁被占用时返回错误。
	Lock(ctx context.Context, key string) (func(), error)
}

// RedisLocker 用 Redis SET NX 实现的对话创建锁。
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker 创建 Redis 锁。ttl 限定持锁上限，防止实例崩溃后死锁。
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "voicehub:convlock:" + key

	ok, err := l.client.SetNX(ctx, lockKey, "1", l.ttl).Result()
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "conversation lock unavailable").WithCause(err)
	}
	if !ok {
		return nil, types.NewError(types.ErrConflict, "conversation start already in progress")
	}

	release := func() {
		// 释放失败只能等 TTL 过期，不向调用方传播
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		l.client.Del(ctx, lockKey)
	}
	return release, nil
}
