package voice

import (
	"github.com/BaSui01/voicehub/types"
)

// State 是编排器状态机的可观察状态。
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
)

// EventType 标识发往 UI 的事件类别。
type EventType string

const (
	// EventState 状态变更快照
	EventState EventType = "state"
	// EventTranscript 本回合的用户转写
	EventTranscript EventType = "transcript"
	// EventReply 助手回复文本
	EventReply EventType = "reply"
	// EventAudio 合成音频已就绪（Audio 字段非空）
	EventAudio EventType = "audio"
	// EventNotice 可恢复失败的用户提示
	EventNotice EventType = "notice"
	// EventEnded 对话已结束
	EventEnded EventType = "ended"
)

// Event 是编排器发出的一条事件。UI 不应假设字段都被填充：
// 每个事件只携带与其类型相关的字段。
type Event struct {
	Type           EventType       `json:"type"`
	State          State           `json:"state,omitempty"`
	Text           string          `json:"text,omitempty"`
	Audio          []byte          `json:"-"`
	Code           types.ErrorCode `json:"code,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
}

// EventSink 接收编排器事件。回调在编排器的执行上下文内同步调用，
// 不得阻塞。
type EventSink func(Event)

// Snapshot 是暴露给视图层的只读状态快照。
type Snapshot struct {
	State          State           `json:"state"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Transcript     string          `json:"transcript,omitempty"`
	History        []types.Message `json:"history"`
	TurnCount      int             `json:"turn_count"`
}
