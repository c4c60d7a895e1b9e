package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/voicehub/internal/tlsutil"
	"github.com/BaSui01/voicehub/types"
)

// DeepgramTTS 使用 Deepgram Aura API 执行语音合成。
type DeepgramTTS struct {
	cfg    DeepgramConfig
	client *http.Client
}

// NewDeepgramTTS 创建新的 Deepgram TTS 客户端。
func NewDeepgramTTS(cfg DeepgramConfig) *DeepgramTTS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepgram.com"
	}
	if cfg.Voice == "" {
		cfg.Voice = types.DefaultVoiceID
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &DeepgramTTS{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
	}
}

func (p *DeepgramTTS) Name() string { return "deepgram" }

type deepgramSpeakRequest struct {
	Text string `json:"text"`
}

// Synthesize 将回复文本转换为 MP3 音频字节。
// 语音标识按原样转发；为空时退回配置的默认语音。
func (p *DeepgramTTS) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "text is required")
	}
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrCredentialMissing, "deepgram api key not configured").WithProvider(p.Name())
	}

	voice := req.Voice
	if voice == "" {
		voice = p.cfg.Voice
	}

	payload, _ := json.Marshal(deepgramSpeakRequest{Text: req.Text})
	endpoint := fmt.Sprintf("%s/v1/speak?model=%s", strings.TrimRight(p.cfg.BaseURL, "/"), voice)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Token "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "deepgram request failed").
			WithProvider(p.Name()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, types.NewError(types.ErrUpstreamError, "text-to-speech failed").
			WithProvider(p.Name()).
			WithHTTPStatus(resp.StatusCode).
			WithCause(fmt.Errorf("deepgram error: status=%d body=%s", resp.StatusCode, string(errBody)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to read deepgram audio").
			WithProvider(p.Name()).WithCause(err)
	}

	return &TTSResponse{
		Provider:  p.Name(),
		Voice:     voice,
		AudioData: audio,
		Format:    "mp3",
		CharCount: len(req.Text),
		CreatedAt: time.Now(),
	}, nil
}
