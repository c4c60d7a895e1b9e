package api

import (
	"github.com/BaSui01/voicehub/store"
	"github.com/BaSui01/voicehub/types"
)

// =============================================================================
// 语音代理类型
// =============================================================================

// TranscriptionRequest 转写请求：base64 编码的完整话语音频。
type TranscriptionRequest struct {
	// base64 编码的音频；允许带 data URL 前缀
	Audio string `json:"audio"`
}

// TranscriptionResponse 转写响应。
type TranscriptionResponse struct {
	Transcript string `json:"transcript"`
}

// SynthesizeRequest 合成请求。
type SynthesizeRequest struct {
	Text string `json:"text"`
	// 音色标识，为空时使用默认音色
	Voice string `json:"voice,omitempty"`
}

// =============================================================================
// 补全代理类型
// =============================================================================

// HistoryMessage 是补全请求中的一条历史消息。
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 补全请求。
type ChatRequest struct {
	// 本轮用户消息
	Message string `json:"message"`
	// 机器人系统提示词
	SystemPrompt string `json:"systemPrompt,omitempty"`
	// 机器人配置的模型标识，仅作记录
	Model string `json:"model,omitempty"`
	// 采样温度；缺省时取 0.7
	Temperature *float64 `json:"temperature,omitempty"`
	// 进行中的对话历史
	History []HistoryMessage `json:"history,omitempty"`
}

// ChatResponse 补全响应。
type ChatResponse struct {
	Response string `json:"response"`
}

// =============================================================================
// 机器人 CRUD 类型
// =============================================================================

// BotCreateRequest 创建机器人请求。
type BotCreateRequest struct {
	Name         string   `json:"name"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	VoiceID      string   `json:"voice_id,omitempty"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

// BotUpdateRequest 部分更新请求，nil 字段保持不变。
type BotUpdateRequest = store.BotUpdate

// =============================================================================
// 对话与看板类型
// =============================================================================

// ConversationDetail 对话详情：行数据加全部消息。
type ConversationDetail struct {
	Conversation store.Conversation `json:"conversation"`
	Messages     []store.Message    `json:"messages"`
}

// CatalogResponse 音色/模型目录响应。
type CatalogResponse struct {
	Voices []types.VoiceOption `json:"voices,omitempty"`
	Models []types.ModelOption `json:"models,omitempty"`
}

// =============================================================================
// WebSocket 会话控制帧
// =============================================================================

// SessionCommandType 客户端控制帧类型。
type SessionCommandType string

const (
	CommandStart        SessionCommandType = "start"
	CommandStop         SessionCommandType = "stop"
	CommandPlaybackDone SessionCommandType = "playback_done"
	CommandEnd          SessionCommandType = "end"
)

// SessionCommand 客户端发来的 JSON 控制帧；音频走二进制帧。
type SessionCommand struct {
	Type SessionCommandType `json:"type"`
}
