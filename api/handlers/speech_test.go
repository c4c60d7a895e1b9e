package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/api"
	"github.com/BaSui01/voicehub/speech"
	"github.com/BaSui01/voicehub/types"
)

// =============================================================================
// 🧪 模拟提供商
// =============================================================================

type mockSTT struct {
	transcribeFunc func(ctx context.Context, req *speech.STTRequest) (*speech.STTResponse, error)
}

func (m *mockSTT) Transcribe(ctx context.Context, req *speech.STTRequest) (*speech.STTResponse, error) {
	if m.transcribeFunc != nil {
		return m.transcribeFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSTT) Name() string { return "mock-stt" }

type mockTTS struct {
	synthesizeFunc func(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

func (m *mockTTS) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if m.synthesizeFunc != nil {
		return m.synthesizeFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTTS) Name() string { return "mock-tts" }

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

// =============================================================================
// 🧪 转写代理测试
// =============================================================================

func TestHandleTranscription(t *testing.T) {
	audio := []byte("fake-webm-audio")
	stt := &mockSTT{
		transcribeFunc: func(_ context.Context, req *speech.STTRequest) (*speech.STTResponse, error) {
			assert.Equal(t, audio, req.Audio)
			return &speech.STTResponse{Text: "hello there"}, nil
		},
	}
	h := NewSpeechHandler(stt, &mockTTS{}, nil, zap.NewNop())

	w := postJSON(t, h.HandleTranscription, "/v1/speech/transcriptions",
		api.TranscriptionRequest{Audio: base64.StdEncoding.EncodeToString(audio)})

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.TranscriptionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hello there", resp.Transcript)
}

func TestHandleTranscriptionDataURLPrefix(t *testing.T) {
	audio := []byte{1, 2, 3}
	stt := &mockSTT{
		transcribeFunc: func(_ context.Context, req *speech.STTRequest) (*speech.STTResponse, error) {
			assert.Equal(t, audio, req.Audio)
			return &speech.STTResponse{Text: "ok"}, nil
		},
	}
	h := NewSpeechHandler(stt, &mockTTS{}, nil, zap.NewNop())

	encoded := "data:audio/webm;base64," + base64.StdEncoding.EncodeToString(audio)
	w := postJSON(t, h.HandleTranscription, "/v1/speech/transcriptions",
		api.TranscriptionRequest{Audio: encoded})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleTranscriptionMissingAudio(t *testing.T) {
	h := NewSpeechHandler(&mockSTT{}, &mockTTS{}, nil, zap.NewNop())
	w := postJSON(t, h.HandleTranscription, "/v1/speech/transcriptions", api.TranscriptionRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTranscriptionInvalidBase64(t *testing.T) {
	h := NewSpeechHandler(&mockSTT{}, &mockTTS{}, nil, zap.NewNop())
	w := postJSON(t, h.HandleTranscription, "/v1/speech/transcriptions",
		api.TranscriptionRequest{Audio: "!!!not-base64!!!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTranscriptionForwardsUpstreamStatus(t *testing.T) {
	stt := &mockSTT{
		transcribeFunc: func(context.Context, *speech.STTRequest) (*speech.STTResponse, error) {
			return nil, types.NewError(types.ErrUpstreamError, "rate limited by deepgram").WithHTTPStatus(429)
		},
	}
	h := NewSpeechHandler(stt, &mockTTS{}, nil, zap.NewNop())

	w := postJSON(t, h.HandleTranscription, "/v1/speech/transcriptions",
		api.TranscriptionRequest{Audio: base64.StdEncoding.EncodeToString([]byte("x"))})
	assert.Equal(t, 429, w.Code)
}

func TestHandleTranscriptionMissingCredential(t *testing.T) {
	stt := &mockSTT{
		transcribeFunc: func(context.Context, *speech.STTRequest) (*speech.STTResponse, error) {
			return nil, types.NewError(types.ErrCredentialMissing, "deepgram api key is not configured")
		},
	}
	h := NewSpeechHandler(stt, &mockTTS{}, nil, zap.NewNop())

	w := postJSON(t, h.HandleTranscription, "/v1/speech/transcriptions",
		api.TranscriptionRequest{Audio: base64.StdEncoding.EncodeToString([]byte("x"))})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// =============================================================================
// 🧪 合成代理测试
// =============================================================================

func TestHandleSynthesize(t *testing.T) {
	mp3 := []byte{0x49, 0x44, 0x33, 0x04}
	tts := &mockTTS{
		synthesizeFunc: func(_ context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
			assert.Equal(t, "Hello!", req.Text)
			assert.Equal(t, "aura-orion-en", req.Voice)
			return &speech.TTSResponse{Voice: req.Voice, AudioData: mp3, Format: "mp3"}, nil
		},
	}
	h := NewSpeechHandler(&mockSTT{}, tts, nil, zap.NewNop())

	w := postJSON(t, h.HandleSynthesize, "/v1/speech/synthesize",
		api.SynthesizeRequest{Text: "Hello!", Voice: "aura-orion-en"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mp3", w.Header().Get("Content-Type"))
	assert.Equal(t, mp3, w.Body.Bytes())
}

func TestHandleSynthesizeMissingText(t *testing.T) {
	h := NewSpeechHandler(&mockSTT{}, &mockTTS{}, nil, zap.NewNop())
	w := postJSON(t, h.HandleSynthesize, "/v1/speech/synthesize", api.SynthesizeRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSynthesizeProviderFailure(t *testing.T) {
	tts := &mockTTS{
		synthesizeFunc: func(context.Context, *speech.TTSRequest) (*speech.TTSResponse, error) {
			return nil, types.NewError(types.ErrUpstreamError, "speak endpoint failed").WithHTTPStatus(500)
		},
	}
	h := NewSpeechHandler(&mockSTT{}, tts, nil, zap.NewNop())

	w := postJSON(t, h.HandleSynthesize, "/v1/speech/synthesize", api.SynthesizeRequest{Text: "hi"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
