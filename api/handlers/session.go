package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/api"
	"github.com/BaSui01/voicehub/internal/metrics"
	"github.com/BaSui01/voicehub/speech"
	"github.com/BaSui01/voicehub/store"
	"github.com/BaSui01/voicehub/types"
	"github.com/BaSui01/voicehub/voice"
)

// writeTimeout 单帧写超时
const writeTimeout = 10 * time.Second

// =============================================================================
// 🔌 语音会话 WebSocket Handler
// =============================================================================

// SessionConfig 会话处理器配置。
type SessionConfig struct {
	// 转发给补全的历史 token 预算
	HistoryTokenBudget int
	// 单条话语的音频字节上限
	MaxAudioBytes int
	// 客户端音频帧的媒体类型
	AudioMimeType string
}

// SessionHandler 把一条 WebSocket 连接桥接到一个语音编排器。
// 客户端发 JSON 控制帧与二进制音频帧；服务端回 JSON 事件，
// 合成音频以单个二进制帧下发。
type SessionHandler struct {
	store     *store.Store
	stt       speech.STTProvider
	tts       speech.TTSProvider
	completer voice.Completer
	metrics   *metrics.Collector
	cfg       SessionConfig
	logger    *zap.Logger
}

// NewSessionHandler 创建会话处理器。metrics 可为 nil。
func NewSessionHandler(
	s *store.Store,
	stt speech.STTProvider,
	tts speech.TTSProvider,
	completer voice.Completer,
	collector *metrics.Collector,
	cfg SessionConfig,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		store:     s,
		stt:       stt,
		tts:       tts,
		completer: completer,
		metrics:   collector,
		cfg:       cfg,
		logger:    logger,
	}
}

// HandleSession 处理 GET /v1/bots/{id}/session 的 WebSocket 升级。
// 一条连接对应一个会话；连接关闭即释放全部会话资源。
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	bot, err := h.store.GetBot(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session terminated")

	// 事件回调在指令执行中同步触发，读循环串行处理指令，
	// 因此不会出现并发写同一连接。
	ctx := r.Context()
	sink := func(ev voice.Event) {
		if err := writeEvent(ctx, conn, ev); err != nil {
			h.logger.Warn("failed to deliver session event",
				zap.String("event", string(ev.Type)),
				zap.Error(err),
			)
		}
	}

	sess, err := voice.NewSession(
		voice.Options{
			Bot:                bot,
			UserID:             userID,
			HistoryTokenBudget: h.cfg.HistoryTokenBudget,
			MaxAudioBytes:      h.cfg.MaxAudioBytes,
			MimeType:           h.cfg.AudioMimeType,
		},
		voice.Deps{
			STT:       h.stt,
			TTS:       h.tts,
			Completer: h.completer,
			Store:     h.store,
			Sink:      sink,
			Metrics:   h.metrics,
			Logger:    h.logger,
		},
	)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "failed to create session")
		return
	}
	defer sess.Close()

	if err := sess.Resume(ctx); err != nil {
		h.logger.Warn("failed to resume conversation", zap.Error(err))
	}

	h.logger.Info("voice session opened",
		zap.String("bot_id", bot.ID),
		zap.String("user_id", userID),
	)
	h.readLoop(ctx, conn, sess)
	h.logger.Info("voice session closed", zap.String("bot_id", bot.ID))
}

// readLoop 串行处理客户端帧，直到连接关闭。
func (h *SessionHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *voice.Session) {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			h.logger.Debug("websocket read ended", zap.Error(err))
			return
		}

		switch msgType {
		case websocket.MessageBinary:
			h.report(ctx, conn, sess.PushAudio(data))
		case websocket.MessageText:
			var cmd api.SessionCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				h.report(ctx, conn, types.NewError(types.ErrInvalidRequest, "malformed control frame"))
				continue
			}
			h.dispatch(ctx, conn, sess, cmd)
		}
	}
}

func (h *SessionHandler) dispatch(ctx context.Context, conn *websocket.Conn, sess *voice.Session, cmd api.SessionCommand) {
	switch cmd.Type {
	case api.CommandStart:
		h.report(ctx, conn, sess.StartTurn())
	case api.CommandStop:
		// 流水线失败已通过 notice 事件送达客户端
		if err := sess.StopTurn(ctx); err != nil && types.IsErrorCode(err, types.ErrInvalidTransition) {
			h.report(ctx, conn, err)
		}
	case api.CommandPlaybackDone:
		h.report(ctx, conn, sess.PlaybackDone())
	case api.CommandEnd:
		h.report(ctx, conn, sess.End(ctx))
	default:
		h.report(ctx, conn, types.NewError(types.ErrInvalidRequest, "unknown command type"))
	}
}

// report 把指令层错误作为 notice 事件回传客户端。
func (h *SessionHandler) report(ctx context.Context, conn *websocket.Conn, err error) {
	if err == nil {
		return
	}
	ev := voice.Event{
		Type: voice.EventNotice,
		Text: err.Error(),
		Code: types.GetErrorCode(err),
	}
	if apiErr := types.AsError(err); apiErr != nil {
		ev.Text = apiErr.Message
	}
	if werr := writeEvent(ctx, conn, ev); werr != nil {
		h.logger.Warn("failed to deliver notice", zap.Error(werr))
	}
}

// writeEvent 序列化并写出一条事件；音频事件走二进制帧。
func writeEvent(ctx context.Context, conn *websocket.Conn, ev voice.Event) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if ev.Type == voice.EventAudio {
		return conn.Write(wctx, websocket.MessageBinary, ev.Audio)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(wctx, websocket.MessageText, data)
}
