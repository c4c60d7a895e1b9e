package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/api"
	"github.com/BaSui01/voicehub/store"
	"github.com/BaSui01/voicehub/types"
)

// =============================================================================
// 🤖 机器人 CRUD Handler
// =============================================================================

// BotsHandler 机器人 CRUD 处理器，所有操作按认证用户隔离。
type BotsHandler struct {
	store  *store.Store
	logger *zap.Logger
}

// NewBotsHandler 创建机器人处理器。
func NewBotsHandler(s *store.Store, logger *zap.Logger) *BotsHandler {
	return &BotsHandler{store: s, logger: logger}
}

// HandleCreate 处理 POST /v1/bots。
func (h *BotsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req api.BotCreateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Name == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "name is required"), h.logger)
		return
	}

	temperature := 0.7
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if err := validateTemperature(temperature); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	bot := &store.VoiceBot{
		UserID:       userID,
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		VoiceID:      req.VoiceID,
		Model:        req.Model,
		Temperature:  temperature,
	}
	if err := h.store.CreateBot(r.Context(), bot); err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	h.logger.Info("bot created", zap.String("bot_id", bot.ID), zap.String("name", bot.Name))
	WriteJSON(w, http.StatusCreated, bot)
}

// HandleList 处理 GET /v1/bots。
func (h *BotsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	bots, err := h.store.ListBots(r.Context(), userID)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, bots)
}

// HandleGet 处理 GET /v1/bots/{id}。
func (h *BotsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	bot, err := h.store.GetBot(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, bot)
}

// HandleUpdate 处理 PATCH /v1/bots/{id}，nil 字段保持不变。
func (h *BotsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req api.BotUpdateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Temperature != nil {
		if err := validateTemperature(*req.Temperature); err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
	}
	if req.Name != nil && *req.Name == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "name must not be empty"), h.logger)
		return
	}

	bot, err := h.store.UpdateBot(r.Context(), userID, r.PathValue("id"), req)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, bot)
}

// HandleDelete 处理 DELETE /v1/bots/{id}，级联删除对话与消息。
func (h *BotsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.store.DeleteBot(r.Context(), userID, r.PathValue("id")); err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	h.logger.Info("bot deleted", zap.String("bot_id", r.PathValue("id")))
	w.WriteHeader(http.StatusNoContent)
}

func validateTemperature(t float64) *types.Error {
	if t < 0 || t > 1 {
		return types.NewError(types.ErrInvalidRequest, "temperature must be between 0 and 1")
	}
	return nil
}
