package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/api"
	"github.com/BaSui01/voicehub/providers/gemini"
	"github.com/BaSui01/voicehub/types"
)

// =============================================================================
// 🧪 模拟补全提供商
// =============================================================================

type mockCompleter struct {
	completeFunc func(ctx context.Context, req *gemini.CompletionRequest) (*gemini.CompletionResponse, error)
}

func (m *mockCompleter) Complete(ctx context.Context, req *gemini.CompletionRequest) (*gemini.CompletionResponse, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockCompleter) Name() string { return "mock-llm" }

// =============================================================================
// 🧪 补全代理测试
// =============================================================================

func TestHandleChatResponse(t *testing.T) {
	var got *gemini.CompletionRequest
	completer := &mockCompleter{
		completeFunc: func(_ context.Context, req *gemini.CompletionRequest) (*gemini.CompletionResponse, error) {
			got = req
			return &gemini.CompletionResponse{Text: "We're open 9 to 5."}, nil
		},
	}
	h := NewChatHandler(completer, nil, zap.NewNop())

	temp := 0.3
	w := postJSON(t, h.HandleChatResponse, "/v1/chat/response", api.ChatRequest{
		Message:      "What are your hours?",
		SystemPrompt: "You are a shop assistant.",
		Model:        "gemini-1.5-flash",
		Temperature:  &temp,
		History: []api.HistoryMessage{
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello!"},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "We're open 9 to 5.", resp.Response)

	require.NotNil(t, got)
	assert.Equal(t, "What are your hours?", got.Message)
	assert.Equal(t, "You are a shop assistant.", got.SystemPrompt)
	assert.Equal(t, 0.3, got.Temperature)
	require.Len(t, got.History, 2)
	assert.Equal(t, types.RoleUser, got.History[0].Role)
}

func TestHandleChatResponseDefaultsTemperature(t *testing.T) {
	completer := &mockCompleter{
		completeFunc: func(_ context.Context, req *gemini.CompletionRequest) (*gemini.CompletionResponse, error) {
			assert.Equal(t, 0.7, req.Temperature)
			return &gemini.CompletionResponse{Text: "ok"}, nil
		},
	}
	h := NewChatHandler(completer, nil, zap.NewNop())

	w := postJSON(t, h.HandleChatResponse, "/v1/chat/response", api.ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleChatResponseMissingMessage(t *testing.T) {
	h := NewChatHandler(&mockCompleter{}, nil, zap.NewNop())
	w := postJSON(t, h.HandleChatResponse, "/v1/chat/response", api.ChatRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatResponseInvalidHistoryRole(t *testing.T) {
	h := NewChatHandler(&mockCompleter{}, nil, zap.NewNop())
	w := postJSON(t, h.HandleChatResponse, "/v1/chat/response", api.ChatRequest{
		Message: "hi",
		History: []api.HistoryMessage{{Role: "system", Content: "nope"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatResponseProviderFailureIs500(t *testing.T) {
	completer := &mockCompleter{
		completeFunc: func(context.Context, *gemini.CompletionRequest) (*gemini.CompletionResponse, error) {
			// 补全上游失败统一呈现为 500
			return nil, types.NewError(types.ErrUpstreamError, "gemini request failed").WithHTTPStatus(500)
		},
	}
	h := NewChatHandler(completer, nil, zap.NewNop())

	w := postJSON(t, h.HandleChatResponse, "/v1/chat/response", api.ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
