package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/BaSui01/voicehub/types"
)

// =============================================================================
// 🗄️ 持久化入口
// =============================================================================

// Store 封装全部数据库操作，所有查询都以 user_id 作用域隔离。
type Store struct {
	db     *gorm.DB
	logger *zap.Logger

	// startGroup 串行化同一 (bot,user) 的对话创建，消除查找后插入的竞态
	startGroup singleflight.Group
	locker     ConversationLocker
}

// New 创建 Store。locker 可为 nil（单实例部署）。
func New(db *gorm.DB, locker ConversationLocker, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		locker: locker,
		logger: logger.With(zap.String("component", "store")),
	}
}

// DB 返回底层 GORM 实例，仅供健康检查使用。
func (s *Store) DB() *gorm.DB { return s.db }

// Ping 检查数据库连接。
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// =============================================================================
// 🤖 VoiceBot CRUD
// =============================================================================

// BotUpdate 是一次机器人编辑：nil 字段保持不变。
type BotUpdate struct {
	Name         *string  `json:"name,omitempty"`
	SystemPrompt *string  `json:"system_prompt,omitempty"`
	VoiceID      *string  `json:"voice_id,omitempty"`
	Model        *string  `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

// CreateBot 创建机器人并填充生成的 ID。
func (s *Store) CreateBot(ctx context.Context, bot *VoiceBot) error {
	if err := s.db.WithContext(ctx).Create(bot).Error; err != nil {
		return types.NewError(types.ErrInternalError, "failed to create bot").WithCause(err)
	}
	return nil
}

// GetBot 返回属于 userID 的机器人。
func (s *Store) GetBot(ctx context.Context, userID, botID string) (*VoiceBot, error) {
	var bot VoiceBot
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", botID, userID).
		First(&bot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNotFound, "bot not found")
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to load bot").WithCause(err)
	}
	return &bot, nil
}

// ListBots 按创建时间降序返回 userID 的全部机器人。
func (s *Store) ListBots(ctx context.Context, userID string) ([]VoiceBot, error) {
	var bots []VoiceBot
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&bots).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to list bots").WithCause(err)
	}
	return bots, nil
}

// UpdateBot 应用部分更新并返回更新后的机器人。ID 不可变。
func (s *Store) UpdateBot(ctx context.Context, userID, botID string, upd BotUpdate) (*VoiceBot, error) {
	bot, err := s.GetBot(ctx, userID, botID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.SystemPrompt != nil {
		fields["system_prompt"] = *upd.SystemPrompt
	}
	if upd.VoiceID != nil {
		fields["voice_id"] = *upd.VoiceID
	}
	if upd.Model != nil {
		fields["model"] = *upd.Model
	}
	if upd.Temperature != nil {
		fields["temperature"] = *upd.Temperature
	}
	if len(fields) == 0 {
		return bot, nil
	}

	if err := s.db.WithContext(ctx).Model(bot).Updates(fields).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to update bot").WithCause(err)
	}
	return s.GetBot(ctx, userID, botID)
}

// DeleteBot 删除机器人及其全部对话和消息。
func (s *Store) DeleteBot(ctx context.Context, userID, botID string) error {
	if _, err := s.GetBot(ctx, userID, botID); err != nil {
		return err
	}

	// 级联在事务内手工执行，不依赖各方言的外键行为
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id IN (?)",
			tx.Model(&Conversation{}).Select("id").Where("bot_id = ?", botID),
		).Delete(&Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("bot_id = ?", botID).Delete(&Conversation{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", botID, userID).Delete(&VoiceBot{}).Error
	})
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to delete bot").WithCause(err)
	}
	return nil
}

// =============================================================================
// 💬 对话生命周期
// =============================================================================

// FindActiveConversation 返回 (bot,user) 当前的 active 对话，不存在时返回 nil。
func (s *Store) FindActiveConversation(ctx context.Context, botID, userID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.WithContext(ctx).
		Where("bot_id = ? AND user_id = ? AND status = ?", botID, userID, ConversationActive).
		Order("started_at DESC").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to query active conversation").WithCause(err)
	}
	return &conv, nil
}

// StartConversation 返回 (bot,user) 的 active 对话，不存在时创建一条。
// 同一键的并发调用通过 singleflight 合并为一次执行；配置了 locker 时
// 再经过跨实例锁。数据库层的唯一冲突按"复用已有对话"处理。
func (s *Store) StartConversation(ctx context.Context, botID, userID string) (*Conversation, error) {
	key := botID + ":" + userID

	v, err, _ := s.startGroup.Do(key, func() (any, error) {
		if s.locker != nil {
			release, err := s.locker.Lock(ctx, key)
			if err != nil {
				return nil, err
			}
			defer release()
		}

		if conv, err := s.FindActiveConversation(ctx, botID, userID); err != nil {
			return nil, err
		} else if conv != nil {
			return conv, nil
		}

		conv := &Conversation{BotID: botID, UserID: userID, Status: ConversationActive}
		err := s.db.WithContext(ctx).Create(conv).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// 撞上部分唯一索引：别的写入者赢了，复用它的对话
			return s.lookupActiveAfterConflict(ctx, botID, userID)
		}
		if err != nil {
			return nil, types.NewError(types.ErrInternalError, "failed to create conversation").WithCause(err)
		}

		s.logger.Info("conversation started",
			zap.String("conversation_id", conv.ID),
			zap.String("bot_id", botID),
		)
		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Conversation), nil
}

func (s *Store) lookupActiveAfterConflict(ctx context.Context, botID, userID string) (*Conversation, error) {
	conv, err := s.FindActiveConversation(ctx, botID, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, types.NewError(types.ErrConflict, "conversation creation conflicted and winner vanished")
	}
	return conv, nil
}

// GetConversation 返回属于 userID 的对话。
func (s *Store) GetConversation(ctx context.Context, userID, convID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", convID, userID).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNotFound, "conversation not found")
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to load conversation").WithCause(err)
	}
	return &conv, nil
}

// ListConversations 按开始时间降序返回 userID 的全部对话。
func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	var convs []Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to list conversations").WithCause(err)
	}
	return convs, nil
}

// EndConversation 把对话标记为 ended 并记录结束时间。
// 已结束的对话原样返回，不会被再次修改。
func (s *Store) EndConversation(ctx context.Context, userID, convID string) (*Conversation, error) {
	conv, err := s.GetConversation(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	if conv.Status == ConversationEnded {
		return conv, nil
	}

	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Model(conv).Updates(map[string]any{
		"status":   ConversationEnded,
		"ended_at": now,
	}).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to end conversation").WithCause(err)
	}

	conv.Status = ConversationEnded
	conv.EndedAt = &now
	s.logger.Info("conversation ended", zap.String("conversation_id", convID))
	return conv, nil
}

// =============================================================================
// 📨 消息
// =============================================================================

// AppendMessage 追加一条消息并返回持久化后的行。
func (s *Store) AppendMessage(ctx context.Context, convID string, role types.Role, content string) (*Message, error) {
	if !role.Valid() {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid message role")
	}
	msg := &Message{ConversationID: convID, Role: role, Content: content}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to append message").WithCause(err)
	}
	return msg, nil
}

// ListMessages 按 created_at 升序返回对话的全部消息。
func (s *Store) ListMessages(ctx context.Context, convID string) ([]Message, error) {
	var msgs []Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to list messages").WithCause(err)
	}
	return msgs, nil
}

// =============================================================================
// 📊 统计
// =============================================================================

// Stats 是控制台首页的汇总计数。
type Stats struct {
	Bots                int64 `json:"bots"`
	Conversations       int64 `json:"conversations"`
	ActiveConversations int64 `json:"active_conversations"`
	Messages            int64 `json:"messages"`
}

// UserStats 返回 userID 作用域内的汇总计数。
func (s *Store) UserStats(ctx context.Context, userID string) (*Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)

	if err := db.Model(&VoiceBot{}).Where("user_id = ?", userID).Count(&st.Bots).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to count bots").WithCause(err)
	}
	if err := db.Model(&Conversation{}).Where("user_id = ?", userID).Count(&st.Conversations).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to count conversations").WithCause(err)
	}
	if err := db.Model(&Conversation{}).
		Where("user_id = ? AND status = ?", userID, ConversationActive).
		Count(&st.ActiveConversations).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to count active conversations").WithCause(err)
	}
	if err := db.Model(&Message{}).
		Where("conversation_id IN (?)",
			db.Model(&Conversation{}).Select("id").Where("user_id = ?", userID),
		).Count(&st.Messages).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to count messages").WithCause(err)
	}

	return &st, nil
}
