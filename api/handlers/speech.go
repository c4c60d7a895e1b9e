package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/api"
	"github.com/BaSui01/voicehub/internal/metrics"
	"github.com/BaSui01/voicehub/speech"
	"github.com/BaSui01/voicehub/types"
)

// =============================================================================
// 🎤 语音代理 Handler
// =============================================================================

// SpeechHandler 转写与合成代理处理器。
// 纯转发层：校验必填字段，调用提供商，按原样回传结果。
type SpeechHandler struct {
	stt     speech.STTProvider
	tts     speech.TTSProvider
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewSpeechHandler 创建语音代理处理器。metrics 可为 nil。
func NewSpeechHandler(stt speech.STTProvider, tts speech.TTSProvider, collector *metrics.Collector, logger *zap.Logger) *SpeechHandler {
	return &SpeechHandler{
		stt:     stt,
		tts:     tts,
		metrics: collector,
		logger:  logger,
	}
}

// HandleTranscription 处理 POST /v1/speech/transcriptions。
// 请求体 {audio: base64}，响应 {transcript}。
func (h *SpeechHandler) HandleTranscription(w http.ResponseWriter, r *http.Request) {
	var req api.TranscriptionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Audio == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "audio is required"), h.logger)
		return
	}

	audio, err := decodeAudio(req.Audio)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "audio is not valid base64").WithCause(err), h.logger)
		return
	}

	start := time.Now()
	resp, err := h.stt.Transcribe(r.Context(), &speech.STTRequest{Audio: audio})
	h.record("transcribe", start, err)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	h.logger.Info("transcription proxied",
		zap.Int("audio_bytes", len(audio)),
		zap.Int("transcript_chars", len(resp.Text)),
	)
	WriteJSON(w, http.StatusOK, api.TranscriptionResponse{Transcript: resp.Text})
}

// HandleSynthesize 处理 POST /v1/speech/synthesize。
// 请求体 {text, voice}，响应为 audio/mp3 原始字节。
func (h *SpeechHandler) HandleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req api.SynthesizeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "text is required"), h.logger)
		return
	}

	start := time.Now()
	resp, err := h.tts.Synthesize(r.Context(), &speech.TTSRequest{Text: req.Text, Voice: req.Voice})
	h.record("synthesize", start, err)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	h.logger.Info("synthesis proxied",
		zap.String("voice", resp.Voice),
		zap.Int("audio_bytes", len(resp.AudioData)),
	)
	w.Header().Set("Content-Type", "audio/mp3")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.AudioData)
}

func (h *SpeechHandler) record(operation string, start time.Time, err error) {
	if h.metrics != nil {
		h.metrics.RecordProviderRequest("deepgram", operation, time.Since(start), err)
	}
}

// decodeAudio 解码 base64 音频，容忍 data URL 前缀与 URL-safe 字母表。
func decodeAudio(s string) ([]byte, error) {
	if i := strings.IndexByte(s, ','); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
