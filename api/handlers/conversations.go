package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/api"
	"github.com/BaSui01/voicehub/store"
	"github.com/BaSui01/voicehub/types"
)

// =============================================================================
// 💬 对话与看板 Handler
// =============================================================================

// ConversationsHandler 对话查询、结束与看板统计处理器。
type ConversationsHandler struct {
	store  *store.Store
	logger *zap.Logger
}

// NewConversationsHandler 创建对话处理器。
func NewConversationsHandler(s *store.Store, logger *zap.Logger) *ConversationsHandler {
	return &ConversationsHandler{store: s, logger: logger}
}

// HandleList 处理 GET /v1/conversations。
func (h *ConversationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	convs, err := h.store.ListConversations(r.Context(), userID)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, convs)
}

// HandleGet 处理 GET /v1/conversations/{id}，返回对话行与全部消息。
func (h *ConversationsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	conv, err := h.store.GetConversation(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	msgs, err := h.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.ConversationDetail{Conversation: *conv, Messages: msgs})
}

// HandleEnd 处理 POST /v1/conversations/{id}/end，幂等。
func (h *ConversationsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	conv, err := h.store.EndConversation(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	h.logger.Info("conversation ended via API", zap.String("conversation_id", conv.ID))
	WriteJSON(w, http.StatusOK, conv)
}

// HandleStats 处理 GET /v1/dashboard/stats。
func (h *ConversationsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	stats, err := h.store.UserStats(r.Context(), userID)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// =============================================================================
// 🎛️ 目录 Handler
// =============================================================================

// CatalogHandler 音色与模型目录处理器。
type CatalogHandler struct {
	logger *zap.Logger
}

// NewCatalogHandler 创建目录处理器。
func NewCatalogHandler(logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{logger: logger}
}

// HandleVoices 处理 GET /v1/voices。
func (h *CatalogHandler) HandleVoices(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.CatalogResponse{Voices: types.VoiceOptions()})
}

// HandleModels 处理 GET /v1/models。
func (h *CatalogHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.CatalogResponse{Models: types.ModelOptions()})
}
