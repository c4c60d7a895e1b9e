package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(Config{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	return New(db, nil, zap.NewNop())
}

func newTestBot(t *testing.T, s *Store, userID string) *VoiceBot {
	t.Helper()
	bot := &VoiceBot{
		UserID:       userID,
		Name:         "Bakery Bot",
		SystemPrompt: "You are the bakery's receptionist.",
		Temperature:  0.7,
	}
	require.NoError(t, s.CreateBot(context.Background(), bot))
	return bot
}

func TestBotCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()

	bot := newTestBot(t, s, userID)
	assert.NotEmpty(t, bot.ID)
	assert.Equal(t, types.DefaultVoiceID, bot.VoiceID)
	assert.Equal(t, types.DefaultModel, bot.Model)

	got, err := s.GetBot(ctx, userID, bot.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bakery Bot", got.Name)

	// 其他用户不可见
	_, err = s.GetBot(ctx, uuid.NewString(), bot.ID)
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))

	name := "Renamed"
	temp := 0.2
	updated, err := s.UpdateBot(ctx, userID, bot.ID, BotUpdate{Name: &name, Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.InDelta(t, 0.2, updated.Temperature, 1e-9)
	assert.Equal(t, bot.ID, updated.ID)
	assert.Equal(t, "You are the bakery's receptionist.", updated.SystemPrompt)

	bots, err := s.ListBots(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, bots, 1)

	require.NoError(t, s.DeleteBot(ctx, userID, bot.ID))
	_, err = s.GetBot(ctx, userID, bot.ID)
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestStartConversation_AtMostOneActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()
	bot := newTestBot(t, s, userID)

	// 重复的 start/end 循环后始终至多一条 active
	for i := 0; i < 5; i++ {
		first, err := s.StartConversation(ctx, bot.ID, userID)
		require.NoError(t, err)

		// 再次 start 必须复用同一条
		second, err := s.StartConversation(ctx, bot.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		var active int64
		require.NoError(t, s.db.Model(&Conversation{}).
			Where("bot_id = ? AND user_id = ? AND status = ?", bot.ID, userID, ConversationActive).
			Count(&active).Error)
		assert.EqualValues(t, 1, active)

		_, err = s.EndConversation(ctx, userID, first.ID)
		require.NoError(t, err)
	}

	convs, err := s.ListConversations(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, convs, 5)
	for _, c := range convs {
		assert.Equal(t, ConversationEnded, c.Status)
		assert.NotNil(t, c.EndedAt)
	}
}

func TestEndConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()
	bot := newTestBot(t, s, userID)

	t.Run("with messages preserves order and count", func(t *testing.T) {
		conv, err := s.StartConversation(ctx, bot.ID, userID)
		require.NoError(t, err)

		const turns = 4
		for i := 0; i < turns; i++ {
			_, err := s.AppendMessage(ctx, conv.ID, types.RoleUser, fmt.Sprintf("question %d", i))
			require.NoError(t, err)
			_, err = s.AppendMessage(ctx, conv.ID, types.RoleAssistant, fmt.Sprintf("answer %d", i))
			require.NoError(t, err)
		}

		ended, err := s.EndConversation(ctx, userID, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, ConversationEnded, ended.Status)
		require.NotNil(t, ended.EndedAt)

		msgs, err := s.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 2*turns)
		for i := 1; i < len(msgs); i++ {
			assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt),
				"created_at must be non-decreasing")
		}
		assert.Equal(t, types.RoleUser, msgs[0].Role)
		assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	})

	t.Run("with zero messages still ends", func(t *testing.T) {
		conv, err := s.StartConversation(ctx, bot.ID, userID)
		require.NoError(t, err)

		ended, err := s.EndConversation(ctx, userID, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, ConversationEnded, ended.Status)
		assert.NotNil(t, ended.EndedAt)

		msgs, err := s.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("ending twice is a no-op", func(t *testing.T) {
		conv, err := s.StartConversation(ctx, bot.ID, userID)
		require.NoError(t, err)

		first, err := s.EndConversation(ctx, userID, conv.ID)
		require.NoError(t, err)
		second, err := s.EndConversation(ctx, userID, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, first.EndedAt.Unix(), second.EndedAt.Unix())
	})

	t.Run("unknown conversation", func(t *testing.T) {
		_, err := s.EndConversation(ctx, userID, uuid.NewString())
		assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
	})
}

func TestAppendMessage_InvalidRole(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendMessage(context.Background(), uuid.NewString(), "system", "nope")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestDeleteBot_CascadesConversationsAndMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()
	bot := newTestBot(t, s, userID)

	conv, err := s.StartConversation(ctx, bot.ID, userID)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conv.ID, types.RoleUser, "hello")
	require.NoError(t, err)

	require.NoError(t, s.DeleteBot(ctx, userID, bot.ID))

	var convCount, msgCount int64
	require.NoError(t, s.db.Model(&Conversation{}).Where("bot_id = ?", bot.ID).Count(&convCount).Error)
	require.NoError(t, s.db.Model(&Message{}).Where("conversation_id = ?", conv.ID).Count(&msgCount).Error)
	assert.Zero(t, convCount)
	assert.Zero(t, msgCount)
}

func TestUserStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()
	bot := newTestBot(t, s, userID)

	conv, err := s.StartConversation(ctx, bot.ID, userID)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conv.ID, types.RoleUser, "hi")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conv.ID, types.RoleAssistant, "hello")
	require.NoError(t, err)

	// 另一个用户的数据不计入
	otherBot := newTestBot(t, s, uuid.NewString())
	_, err = s.StartConversation(ctx, otherBot.ID, otherBot.UserID)
	require.NoError(t, err)

	st, err := s.UserStats(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Bots)
	assert.EqualValues(t, 1, st.Conversations)
	assert.EqualValues(t, 1, st.ActiveConversations)
	assert.EqualValues(t, 2, st.Messages)
}

func TestStartConversation_ConcurrentSingleflight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()
	bot := newTestBot(t, s, userID)

	const n = 16
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			conv, err := s.StartConversation(ctx, bot.ID, userID)
			if err != nil {
				ids <- "error: " + err.Error()
				return
			}
			ids <- conv.ID
		}()
	}

	first := <-ids
	for i := 1; i < n; i++ {
		assert.Equal(t, first, <-ids)
	}

	var active int64
	require.NoError(t, s.db.Model(&Conversation{}).
		Where("bot_id = ? AND status = ?", bot.ID, ConversationActive).
		Count(&active).Error)
	assert.EqualValues(t, 1, active)
}
