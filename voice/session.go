package voice

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/voicehub/internal/metrics"
	"github.com/BaSui01/voicehub/internal/pool"
	"github.com/BaSui01/voicehub/providers/gemini"
	"github.com/BaSui01/voicehub/speech"
	"github.com/BaSui01/voicehub/store"
	"github.com/BaSui01/voicehub/types"
)

// =============================================================================
// 🔌 依赖接口
// =============================================================================

// Completer 是补全提供商的最小接口，由 providers/gemini 实现。
type Completer interface {
	Complete(ctx context.Context, req *gemini.CompletionRequest) (*gemini.CompletionResponse, error)
	Name() string
}

// ConversationStore 是编排器需要的持久化子集，由 store.Store 实现。
type ConversationStore interface {
	StartConversation(ctx context.Context, botID, userID string) (*store.Conversation, error)
	FindActiveConversation(ctx context.Context, botID, userID string) (*store.Conversation, error)
	EndConversation(ctx context.Context, userID, convID string) (*store.Conversation, error)
	AppendMessage(ctx context.Context, convID string, role types.Role, content string) (*store.Message, error)
	ListMessages(ctx context.Context, convID string) ([]store.Message, error)
}

// Deps 汇集一个 Session 的全部外部依赖。Metrics 可为 nil。
type Deps struct {
	STT       speech.STTProvider
	TTS       speech.TTSProvider
	Completer Completer
	Store     ConversationStore
	Sink      EventSink
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

// Options 是一个 Session 的每会话配置。
type Options struct {
	Bot    *store.VoiceBot
	UserID string

	// HistoryTokenBudget 限制转发给补全提供商的历史 token 总量，
	// 0 表示不设上限。持久化历史不受影响。
	HistoryTokenBudget int
	// MaxAudioBytes 限制单条话语缓冲的音频字节数，0 取默认值。
	MaxAudioBytes int
	// MimeType 是客户端音频帧的媒体类型，默认 audio/webm。
	MimeType string

	// TokenCounter 覆盖默认的 token 计数器，测试用。
	TokenCounter TokenCounter
}

const defaultMaxAudioBytes = 10 << 20 // 10 MiB

// =============================================================================
// 🎙️ 会话编排器
// =============================================================================

// Session 驱动一次对话的回合状态机。全部方法并发安全；
// 同一 Session 任意时刻至多一个回合在 processing 或 speaking。
type Session struct {
	mu sync.Mutex

	state          State
	conversationID string
	transcript     string // 最近一次成功的转写
	turnCount      int
	closed         bool

	bot     *store.VoiceBot
	userID  string
	audio   *bytes.Buffer // 从 pool.AudioBuffers 借出，Close 时归还
	history *History

	maxAudioBytes int
	mimeType      string

	stt     speech.STTProvider
	tts     speech.TTSProvider
	llm     Completer
	store   ConversationStore
	sink    EventSink
	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewSession 创建一个处于 idle 状态的会话。
func NewSession(opts Options, deps Deps) (*Session, error) {
	if opts.Bot == nil || opts.UserID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "session requires a bot and a user")
	}
	if deps.STT == nil || deps.TTS == nil || deps.Completer == nil || deps.Store == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "session requires stt, tts, completer and store")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sink == nil {
		deps.Sink = func(Event) {}
	}

	maxBytes := opts.MaxAudioBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxAudioBytes
	}
	mime := opts.MimeType
	if mime == "" {
		mime = "audio/webm"
	}

	var hist *History
	if opts.TokenCounter != nil {
		hist = NewHistoryWithCounter(opts.HistoryTokenBudget, opts.TokenCounter)
	} else {
		hist = NewHistory(opts.HistoryTokenBudget)
	}

	s := &Session{
		state:         StateIdle,
		bot:           opts.Bot,
		userID:        opts.UserID,
		audio:         pool.AudioBuffers.Get(),
		history:       hist,
		maxAudioBytes: maxBytes,
		mimeType:      mime,
		stt:           deps.STT,
		tts:           deps.TTS,
		llm:           deps.Completer,
		store:         deps.Store,
		sink:          deps.Sink,
		metrics:       deps.Metrics,
		tracer:        otel.Tracer("voicehub/voice"),
		logger: deps.Logger.With(
			zap.String("component", "session"),
			zap.String("bot_id", opts.Bot.ID),
		),
	}
	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	return s, nil
}

// Snapshot 返回当前状态的只读快照。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:          s.state,
		ConversationID: s.conversationID,
		Transcript:     s.transcript,
		History:        s.history.Snapshot(),
		TurnCount:      s.turnCount,
	}
}

// Resume 恢复 (bot,user) 已有的 active 对话：加载其全部消息进
// 内存历史。没有 active 对话时是无操作，首次 StopTurn 会新建一条。
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.state != StateIdle {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot resume while %s", s.state))
	}

	conv, err := s.store.FindActiveConversation(ctx, s.bot.ID, s.userID)
	if err != nil {
		return err
	}
	if conv == nil {
		return nil
	}

	msgs, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return err
	}
	s.conversationID = conv.ID
	s.history.Clear()
	for _, m := range msgs {
		s.history.Append(types.Message{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
	}
	s.logger.Info("conversation resumed",
		zap.String("conversation_id", conv.ID),
		zap.Int("messages", len(msgs)),
	)
	s.emit(Event{Type: EventState, State: s.state, ConversationID: conv.ID})
	return nil
}

// StartTurn 打开一条新话语：idle → listening，清空音频缓冲。
func (s *Session) StartTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	switch s.state {
	case StateIdle:
	case StateProcessing, StateSpeaking:
		return types.NewError(types.ErrSessionBusy,
			fmt.Sprintf("a turn is already in flight (%s)", s.state))
	default:
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot start a turn while %s", s.state))
	}

	s.audio.Reset()
	s.setState(StateListening)
	return nil
}

// PushAudio 在 listening 期间追加一帧客户端音频。
func (s *Session) PushAudio(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.state != StateListening {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot accept audio while %s", s.state))
	}
	if s.audio.Len()+len(frame) > s.maxAudioBytes {
		return types.NewError(types.ErrInvalidRequest, "utterance exceeds audio size limit")
	}
	s.audio.Write(frame)
	return nil
}

// StopTurn 结束采集并同步执行回合流水线：
// listening → processing → (speaking | idle)。
// 失败时状态机回到 idle 并发出 notice 事件；已持久化的部分保留。
func (s *Session) StopTurn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.state != StateListening {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot stop a turn while %s", s.state))
	}
	if s.audio.Len() == 0 {
		s.setState(StateIdle)
		err := types.NewError(types.ErrInvalidRequest, "no audio captured for this turn")
		s.emit(Event{Type: EventNotice, Text: err.Message, Code: err.Code})
		return err
	}

	s.setState(StateProcessing)
	if err := s.runTurn(ctx); err != nil {
		s.failTurn(err)
		return err
	}

	s.turnCount++
	s.setState(StateSpeaking)
	if s.metrics != nil {
		s.metrics.RecordTurn("completed")
	}
	return nil
}

// PlaybackDone 表示客户端播放完毕：speaking → idle。
func (s *Session) PlaybackDone() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.state != StateSpeaking {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("no playback in progress while %s", s.state))
	}
	s.setState(StateIdle)
	return nil
}

// End 结束当前对话并清空内存历史，任意状态下都允许。
// 对话从未落库时仅重置内存状态。
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}

	endedID := s.conversationID
	if endedID != "" {
		if _, err := s.store.EndConversation(ctx, s.userID, endedID); err != nil {
			return err
		}
	}

	s.conversationID = ""
	s.transcript = ""
	s.audio.Reset()
	s.history.Clear()
	s.state = StateIdle
	s.emit(Event{Type: EventEnded, ConversationID: endedID})
	s.emit(Event{Type: EventState, State: StateIdle})
	if endedID != "" {
		s.logger.Info("conversation ended", zap.String("conversation_id", endedID))
	}
	return nil
}

// Close 释放会话。不结束底层对话；关闭后所有指令被拒绝。
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.audio != nil {
		pool.AudioBuffers.Put(s.audio)
		s.audio = nil
	}
	if s.metrics != nil {
		s.metrics.SessionClosed()
	}
}

// =============================================================================
// ⚙️ 回合流水线
// =============================================================================

// runTurn 在持锁状态下顺序执行一个回合。调用方负责状态迁移。
func (s *Session) runTurn(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "voice.turn",
		trace.WithAttributes(attribute.String("bot.id", s.bot.ID)))
	defer span.End()

	// 确保对话存在；同一 (bot,user) 并发进入时复用同一条
	if s.conversationID == "" {
		conv, err := s.store.StartConversation(ctx, s.bot.ID, s.userID)
		if err != nil {
			return err
		}
		s.conversationID = conv.ID
	}
	span.SetAttributes(attribute.String("conversation.id", s.conversationID))

	// 语音识别
	transcript, err := s.transcribe(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(transcript) == "" {
		// 软失败：不持久化任何消息，回合照常中止
		if s.metrics != nil {
			s.metrics.RecordTurn("empty_transcript")
		}
		return types.NewError(types.ErrEmptyTranscript, "no speech detected, please try again")
	}
	s.transcript = transcript
	s.emit(Event{Type: EventTranscript, Text: transcript, ConversationID: s.conversationID})

	// 持久化用户消息
	if _, err := s.store.AppendMessage(ctx, s.conversationID, types.RoleUser, transcript); err != nil {
		return err
	}

	// 转发给补全的历史不含本回合的用户消息
	forward := s.history.Forward()
	s.history.Append(types.NewUserMessage(transcript))

	reply, err := s.complete(ctx, transcript, forward)
	if err != nil {
		return err
	}
	s.emit(Event{Type: EventReply, Text: reply, ConversationID: s.conversationID})

	if _, err := s.store.AppendMessage(ctx, s.conversationID, types.RoleAssistant, reply); err != nil {
		return err
	}
	s.history.Append(types.NewAssistantMessage(reply))

	// 语音合成
	audio, err := s.synthesize(ctx, reply)
	if err != nil {
		return err
	}
	s.emit(Event{Type: EventAudio, Audio: audio, ConversationID: s.conversationID})
	return nil
}

func (s *Session) transcribe(ctx context.Context) (string, error) {
	start := time.Now()
	resp, err := s.stt.Transcribe(ctx, &speech.STTRequest{
		Audio:    s.audio.Bytes(),
		MimeType: s.mimeType,
	})
	s.recordStep("transcribe", s.stt.Name(), start, err)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (s *Session) complete(ctx context.Context, message string, history []types.Message) (string, error) {
	start := time.Now()
	resp, err := s.llm.Complete(ctx, &gemini.CompletionRequest{
		Message:      message,
		SystemPrompt: s.bot.SystemPrompt,
		Model:        s.bot.Model,
		Temperature:  s.bot.Temperature,
		History:      history,
	})
	s.recordStep("complete", s.llm.Name(), start, err)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (s *Session) synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	resp, err := s.tts.Synthesize(ctx, &speech.TTSRequest{
		Text:  text,
		Voice: s.bot.VoiceID,
	})
	s.recordStep("synthesize", s.tts.Name(), start, err)
	if err != nil {
		return nil, err
	}
	return resp.AudioData, nil
}

// =============================================================================
// 🧰 内部辅助
// =============================================================================

func (s *Session) requireOpen() error {
	if s.closed {
		return types.NewError(types.ErrInvalidRequest, "session is closed")
	}
	return nil
}

func (s *Session) setState(st State) {
	s.state = st
	s.emit(Event{Type: EventState, State: st, ConversationID: s.conversationID})
}

// failTurn 把状态机送回 idle 并通知客户端。已持久化的部分工作保留。
func (s *Session) failTurn(err error) {
	code := types.GetErrorCode(err)
	s.logger.Warn("turn failed",
		zap.String("conversation_id", s.conversationID),
		zap.String("code", string(code)),
		zap.Error(err),
	)
	if s.metrics != nil && code != types.ErrEmptyTranscript {
		s.metrics.RecordTurn("failed")
	}

	text := "something went wrong, please try again"
	if verr := types.AsError(err); verr != nil {
		text = verr.Message
	}
	s.emit(Event{Type: EventNotice, Text: text, Code: code, ConversationID: s.conversationID})
	s.setState(StateIdle)
}

func (s *Session) recordStep(step, provider string, start time.Time, err error) {
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordTurnStep(step, elapsed)
		s.metrics.RecordProviderRequest(provider, step, elapsed, err)
	}
}

func (s *Session) emit(ev Event) {
	s.sink(ev)
}
