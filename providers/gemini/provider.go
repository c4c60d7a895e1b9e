package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/internal/tlsutil"
	"github.com/BaSui01/voicehub/types"
)

// 默认系统提示词，与语音场景匹配：回答简短、口语化。
const defaultSystemPrompt = "You are a helpful voice assistant. Keep responses concise and conversational."

// 回复长度上限固定为 256 token，保证合成后的语音足够短。
const defaultMaxOutputTokens = 256

// Config 配置 Gemini 补全客户端。
type Config struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	// Model 是实际调用的模型，对所有请求固定；
	// 机器人配置里的模型标识仅作记录。
	Model           string        `json:"model,omitempty" yaml:"model,omitempty"`
	MaxOutputTokens int           `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`
	Timeout         time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultConfig 返回默认 Gemini 配置。
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://generativelanguage.googleapis.com",
		Model:           "gemini-2.5-flash",
		MaxOutputTokens: defaultMaxOutputTokens,
		Timeout:         60 * time.Second,
	}
}

// CompletionRequest 代表一轮语音对话的补全请求。
type CompletionRequest struct {
	// Message 是本轮的用户转写文本。
	Message string `json:"message"`
	// SystemPrompt 是机器人的系统提示词，为空时使用默认提示词。
	SystemPrompt string `json:"system_prompt,omitempty"`
	// Model 是机器人配置的模型标识，仅作记录。
	Model string `json:"model,omitempty"`
	// Temperature 按原样转发，不做裁剪。
	Temperature float64 `json:"temperature"`
	// History 是当前对话的全部进行中历史（user/assistant 对）。
	History []types.Message `json:"history,omitempty"`
}

// CompletionResponse 代表一次补全的结果。
type CompletionResponse struct {
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Text       string    `json:"text"`
	UsedTokens int       `json:"used_tokens,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Provider 实现 Google Gemini 的补全客户端。
// Gemini API 特点：
// 1. 使用 x-goog-api-key 请求头认证
// 2. system 指令通过 systemInstruction 字段传递
// 3. 回复从 candidates[0].content.parts[0].text 提取
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewProvider 创建 Gemini 补全客户端。
func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger,
	}
}

func (p *Provider) Name() string { return "gemini" }

// Gemini 消息结构
type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user, model
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string               `json:"modelVersion,omitempty"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	// Gemini 使用 x-goog-api-key 认证
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// buildPrompt 把进行中的对话历史拍平成单轮提示词。
// 历史按 "User:"/"Assistant:" 行拼接，末尾固定追加口语化、简短回复的指令。
func buildPrompt(message string, history []types.Message) string {
	const suffix = "Respond naturally and conversationally. Keep your response concise (1-3 sentences) since this is a voice conversation."

	if len(history) == 0 {
		return fmt.Sprintf("User: %s\n\n%s", message, suffix)
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		if m.Role == types.RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Content)
	}
	fmt.Fprintf(&b, "\n\nUser: %s\n\n%s", message, suffix)
	return b.String()
}

// Complete 执行一次非流式补全并返回回复文本。
func (p *Provider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "message is required")
	}
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrCredentialMissing, "gemini api key not configured").WithProvider(p.Name())
	}

	systemPrompt := req.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildPrompt(req.Message, req.History)}},
		}},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemPrompt}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: p.cfg.MaxOutputTokens,
		},
	}

	payload, _ := json.Marshal(body)
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	p.buildHeaders(httpReq)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "gemini request failed").
			WithProvider(p.Name()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewError(types.ErrUpstreamError, "failed to generate response").
			WithProvider(p.Name()).
			WithHTTPStatus(http.StatusInternalServerError).
			WithCause(fmt.Errorf("gemini error: status=%d msg=%s", resp.StatusCode, readGeminiErrMsg(resp.Body)))
	}

	var gResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to decode gemini response").
			WithProvider(p.Name()).WithCause(err)
	}

	if len(gResp.Candidates) == 0 || len(gResp.Candidates[0].Content.Parts) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "gemini returned no candidates").WithProvider(p.Name())
	}

	result := &CompletionResponse{
		Provider:  p.Name(),
		Model:     p.cfg.Model,
		Text:      gResp.Candidates[0].Content.Parts[0].Text,
		CreatedAt: time.Now(),
	}
	if gResp.UsageMetadata != nil {
		result.UsedTokens = gResp.UsageMetadata.TotalTokenCount
	}

	p.logger.Debug("gemini completion",
		zap.String("model", p.cfg.Model),
		zap.String("requested_model", req.Model),
		zap.Int("history_len", len(req.History)),
		zap.Int("total_tokens", result.UsedTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// readGeminiErrMsg 尽力从错误响应体中提取消息。
func readGeminiErrMsg(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return string(data)
}
