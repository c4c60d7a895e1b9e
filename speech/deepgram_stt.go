package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/voicehub/internal/tlsutil"
	"github.com/BaSui01/voicehub/types"
)

// DeepgramSTT 使用 Deepgram API 执行语音识别。
type DeepgramSTT struct {
	cfg    DeepgramConfig
	client *http.Client
}

// NewDeepgramSTT 创建新的 Deepgram STT 客户端。
func NewDeepgramSTT(cfg DeepgramConfig) *DeepgramSTT {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepgram.com"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &DeepgramSTT{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
	}
}

func (p *DeepgramSTT) Name() string { return "deepgram" }

type deepgramListenResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
		Channels  int     `json:"channels"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe 将一段完整话语的音频转换为文本。
// 未识别出内容时返回空 Text，由调用方决定如何处理。
func (p *DeepgramSTT) Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error) {
	if len(req.Audio) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "audio input is required")
	}
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrCredentialMissing, "deepgram api key not configured").WithProvider(p.Name())
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	language := req.Language
	if language == "" {
		language = p.cfg.Language
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	params := url.Values{}
	params.Set("model", model)
	params.Set("language", language)
	params.Set("smart_format", "true")

	endpoint := fmt.Sprintf("%s/v1/listen?%s", strings.TrimRight(p.cfg.BaseURL, "/"), params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Audio))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Token "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", mimeType)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "deepgram request failed").
			WithProvider(p.Name()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, types.NewError(types.ErrUpstreamError, "speech recognition failed").
			WithProvider(p.Name()).
			WithHTTPStatus(resp.StatusCode).
			WithCause(fmt.Errorf("deepgram error: status=%d body=%s", resp.StatusCode, string(errBody)))
	}

	var dResp deepgramListenResponse
	if err := json.NewDecoder(resp.Body).Decode(&dResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to decode deepgram response").
			WithProvider(p.Name()).WithCause(err)
	}

	result := &STTResponse{
		Provider:  p.Name(),
		Model:     model,
		Duration:  time.Duration(dResp.Metadata.Duration * float64(time.Second)),
		CreatedAt: time.Now(),
	}

	// 只取第一个频道的第一个候选转写
	if len(dResp.Results.Channels) > 0 && len(dResp.Results.Channels[0].Alternatives) > 0 {
		alt := dResp.Results.Channels[0].Alternatives[0]
		result.Text = alt.Transcript
		result.Confidence = alt.Confidence
	}

	return result, nil
}
