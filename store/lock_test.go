package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/types"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewRedisLocker(newTestRedis(t), time.Minute)

	release, err := locker.Lock(ctx, "bot:user")
	require.NoError(t, err)

	// 持锁期间同键加锁失败
	_, err = locker.Lock(ctx, "bot:user")
	assert.True(t, types.IsErrorCode(err, types.ErrConflict))

	// 不同键不受影响
	otherRelease, err := locker.Lock(ctx, "bot:other")
	require.NoError(t, err)
	otherRelease()

	release()

	// 释放后可重新获取
	release2, err := locker.Lock(ctx, "bot:user")
	require.NoError(t, err)
	release2()
}

func TestStartConversation_WithRedisLocker(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)

	s := New(db, NewRedisLocker(newTestRedis(t), time.Minute), zap.NewNop())
	ctx := context.Background()
	userID := uuid.NewString()
	bot := newTestBot(t, s, userID)

	first, err := s.StartConversation(ctx, bot.ID, userID)
	require.NoError(t, err)

	// 锁在创建路径内部获取并释放，后续调用复用已有对话
	second, err := s.StartConversation(ctx, bot.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}
