package speech

import (
	"context"
	"time"
)

// ============================================================
// 语音转文本（STT）
// ============================================================

// STTRequest 代表一次语音转文本请求：单段完整话语的音频字节。
type STTRequest struct {
	Audio    []byte `json:"-"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"` // ISO-639-1 code
	MimeType string `json:"mime_type,omitempty"`
}

// STTResponse 代表来自 STT 请求的响应。
// Text 为空字符串表示提供商未识别出任何内容。
type STTResponse struct {
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// STTProvider 定义了 STT 提供者接口。
type STTProvider interface {
	// Transcribe 将语音转换为文本。
	Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error)

	// Name 返回提供者名称。
	Name() string
}

// ============================================================
// 文本转语音（TTS）
// ============================================================

// TTSRequest 代表一次文本转语音请求。
type TTSRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// TTSResponse 代表来自 TTS 请求的响应，音频为完整缓冲的字节。
type TTSResponse struct {
	Provider  string    `json:"provider"`
	Voice     string    `json:"voice"`
	AudioData []byte    `json:"-"`
	Format    string    `json:"format"` // mp3
	CharCount int       `json:"char_count,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TTSProvider 定义了 TTS 提供者接口。
type TTSProvider interface {
	// Synthesize 将文本转换为语音。
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error)

	// Name 返回提供者名称。
	Name() string
}
