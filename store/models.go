package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BaSui01/voicehub/types"
)

// ConversationStatus 表示对话的生命周期状态。
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationEnded  ConversationStatus = "ended"
)

// VoiceBot 是一个可对话的语音机器人配置。
// ID 不可变，其余字段均可由所有者修改。
type VoiceBot struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"type:uuid;not null;index:idx_voice_bots_user" json:"user_id"`
	Name         string    `gorm:"size:120;not null" json:"name"`
	SystemPrompt string    `gorm:"type:text;not null" json:"system_prompt"`
	VoiceID      string    `gorm:"size:64;not null" json:"voice_id"`
	Model        string    `gorm:"size:64;not null" json:"model"`
	Temperature  float64   `gorm:"not null" json:"temperature"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Conversations []Conversation `gorm:"foreignKey:BotID;constraint:OnDelete:CASCADE" json:"-"`
}

func (b *VoiceBot) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.VoiceID == "" {
		b.VoiceID = types.DefaultVoiceID
	}
	if b.Model == "" {
		b.Model = types.DefaultModel
	}
	return nil
}

// Conversation 是一次进行中或已结束的语音会话。
type Conversation struct {
	ID        string             `gorm:"type:uuid;primaryKey" json:"id"`
	BotID     string             `gorm:"type:uuid;not null;index:idx_conversations_scope" json:"bot_id"`
	UserID    string             `gorm:"type:uuid;not null;index:idx_conversations_scope" json:"user_id"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
	Status    ConversationStatus `gorm:"size:16;not null;index:idx_conversations_scope" json:"status"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (c *Conversation) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = ConversationActive
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now().UTC()
	}
	return nil
}

// Message 是对话中的一条转写或回复，只追加，从不单独修改或删除。
type Message struct {
	ID             string     `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID string     `gorm:"type:uuid;not null;index:idx_messages_conversation" json:"conversation_id"`
	Role           types.Role `gorm:"size:16;not null" json:"role"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// AutoMigrate 建立全部表结构，供 SQLite 开发/测试环境使用；
// PostgreSQL/MySQL 生产环境走 migrations/ 下的版本化迁移。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&VoiceBot{}, &Conversation{}, &Message{})
}
