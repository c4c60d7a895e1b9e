package speech

import "time"

// DeepgramConfig 配置 Deepgram STT/TTS 客户端。
type DeepgramConfig struct {
	APIKey   string        `json:"api_key" yaml:"api_key"`
	BaseURL  string        `json:"base_url" yaml:"base_url"`
	Model    string        `json:"model,omitempty" yaml:"model,omitempty"` // nova-2
	Language string        `json:"language,omitempty" yaml:"language,omitempty"`
	Voice    string        `json:"voice,omitempty" yaml:"voice,omitempty"` // aura-asteria-en
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultDeepgramConfig 返回默认 Deepgram 配置。
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		BaseURL:  "https://api.deepgram.com",
		Model:    "nova-2",
		Language: "en",
		Voice:    "aura-asteria-en",
		Timeout:  120 * time.Second,
	}
}
