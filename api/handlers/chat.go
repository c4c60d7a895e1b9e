package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/api"
	"github.com/BaSui01/voicehub/internal/metrics"
	"github.com/BaSui01/voicehub/providers/gemini"
	"github.com/BaSui01/voicehub/types"
	"github.com/BaSui01/voicehub/voice"
)

// defaultTemperature 请求未携带温度时的取值
const defaultTemperature = 0.7

// =============================================================================
// 💬 补全代理 Handler
// =============================================================================

// ChatHandler 补全代理处理器。
type ChatHandler struct {
	completer voice.Completer
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewChatHandler 创建补全代理处理器。metrics 可为 nil。
func NewChatHandler(completer voice.Completer, collector *metrics.Collector, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		completer: completer,
		metrics:   collector,
		logger:    logger,
	}
}

// HandleChatResponse 处理 POST /v1/chat/response。
// 请求体 {message, systemPrompt, model, temperature, history[]}，
// 响应 {response}。
func (h *ChatHandler) HandleChatResponse(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Message == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "message is required"), h.logger)
		return
	}

	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	history := make([]types.Message, 0, len(req.History))
	for _, m := range req.History {
		role := types.Role(m.Role)
		if !role.Valid() {
			WriteError(w, r, types.NewError(types.ErrInvalidRequest, "history role must be user or assistant"), h.logger)
			return
		}
		history = append(history, types.Message{Role: role, Content: m.Content})
	}

	start := time.Now()
	resp, err := h.completer.Complete(r.Context(), &gemini.CompletionRequest{
		Message:      req.Message,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Temperature:  temperature,
		History:      history,
	})
	if h.metrics != nil {
		h.metrics.RecordProviderRequest(h.completer.Name(), "complete", time.Since(start), err)
	}
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	h.logger.Info("completion proxied",
		zap.Int("history_len", len(history)),
		zap.Int("reply_chars", len(resp.Text)),
		zap.Duration("duration", time.Since(start)),
	)
	WriteJSON(w, http.StatusOK, api.ChatResponse{Response: resp.Text})
}
