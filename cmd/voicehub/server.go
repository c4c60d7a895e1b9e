package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/voicehub/api/handlers"
	"github.com/BaSui01/voicehub/config"
	"github.com/BaSui01/voicehub/internal/metrics"
	"github.com/BaSui01/voicehub/internal/server"
	"github.com/BaSui01/voicehub/internal/telemetry"
	"github.com/BaSui01/voicehub/providers/gemini"
	"github.com/BaSui01/voicehub/speech"
	"github.com/BaSui01/voicehub/store"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 VoiceHub 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 存储与上游依赖
	db          *gorm.DB
	store       *store.Store
	redisClient *redis.Client
	stt         speech.STTProvider
	tts         speech.TTSProvider
	completer   *gemini.Provider

	// Handlers
	healthHandler        *handlers.HealthHandler
	speechHandler        *handlers.SpeechHandler
	chatHandler          *handlers.ChatHandler
	botsHandler          *handlers.BotsHandler
	conversationsHandler *handlers.ConversationsHandler
	catalogHandler       *handlers.CatalogHandler
	sessionHandler       *handlers.SessionHandler

	// 指标收集器与遥测
	metricsCollector *metrics.Collector
	otelProviders    *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("voicehub", s.logger)

	// 2. 初始化存储层
	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}

	// 3. 初始化上游提供商
	s.initProviders()

	// 4. 初始化 Handlers
	s.initHandlers()

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("auth_enabled", s.cfg.Auth.Enabled),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStore 打开数据库并组装存储层
func (s *Server) initStore() error {
	db, err := store.Open(store.Config{
		Driver:          s.cfg.Database.Driver,
		DSN:             s.cfg.Database.DSN(),
		MaxIdleConns:    s.cfg.Database.MaxIdleConns,
		MaxOpenConns:    s.cfg.Database.MaxOpenConns,
		ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime,
	}, s.logger)
	if err != nil {
		return err
	}
	s.db = db

	// 跨实例对话启动锁（可选，单实例部署用进程内 singleflight 即可）
	var locker store.ConversationLocker
	if s.cfg.Redis.Enabled {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
			PoolSize: s.cfg.Redis.PoolSize,
		})
		locker = store.NewRedisLocker(s.redisClient, s.cfg.Redis.LockTTL)
		s.logger.Info("Redis conversation lock enabled", zap.String("addr", s.cfg.Redis.Addr))
	}

	s.store = store.New(db, locker, s.logger)
	return nil
}

// initProviders 初始化 Deepgram 与 Gemini 客户端
func (s *Server) initProviders() {
	deepgramCfg := speech.DefaultDeepgramConfig()
	deepgramCfg.APIKey = s.cfg.Deepgram.APIKey
	if s.cfg.Deepgram.BaseURL != "" {
		deepgramCfg.BaseURL = s.cfg.Deepgram.BaseURL
	}
	if s.cfg.Deepgram.Model != "" {
		deepgramCfg.Model = s.cfg.Deepgram.Model
	}
	if s.cfg.Deepgram.Language != "" {
		deepgramCfg.Language = s.cfg.Deepgram.Language
	}
	if s.cfg.Deepgram.Voice != "" {
		deepgramCfg.Voice = s.cfg.Deepgram.Voice
	}
	if s.cfg.Deepgram.Timeout > 0 {
		deepgramCfg.Timeout = s.cfg.Deepgram.Timeout
	}
	s.stt = speech.NewDeepgramSTT(deepgramCfg)
	s.tts = speech.NewDeepgramTTS(deepgramCfg)

	geminiCfg := gemini.DefaultConfig()
	geminiCfg.APIKey = s.cfg.Gemini.APIKey
	if s.cfg.Gemini.BaseURL != "" {
		geminiCfg.BaseURL = s.cfg.Gemini.BaseURL
	}
	if s.cfg.Gemini.Model != "" {
		geminiCfg.Model = s.cfg.Gemini.Model
	}
	if s.cfg.Gemini.MaxOutputTokens > 0 {
		geminiCfg.MaxOutputTokens = s.cfg.Gemini.MaxOutputTokens
	}
	if s.cfg.Gemini.Timeout > 0 {
		geminiCfg.Timeout = s.cfg.Gemini.Timeout
	}
	s.completer = gemini.NewProvider(geminiCfg, s.logger)

	if s.cfg.Deepgram.APIKey == "" {
		s.logger.Warn("Deepgram API key not configured, speech endpoints will fail")
	}
	if s.cfg.Gemini.APIKey == "" {
		s.logger.Warn("Gemini API key not configured, completion endpoints will fail")
	}
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "database",
		Fn: func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})
	if s.redisClient != nil {
		s.healthHandler.RegisterCheck(handlers.HealthCheckFunc{
			CheckName: "redis",
			Fn: func(ctx context.Context) error {
				return s.redisClient.Ping(ctx).Err()
			},
		})
	}

	s.speechHandler = handlers.NewSpeechHandler(s.stt, s.tts, s.metricsCollector, s.logger)
	s.chatHandler = handlers.NewChatHandler(s.completer, s.metricsCollector, s.logger)
	s.botsHandler = handlers.NewBotsHandler(s.store, s.logger)
	s.conversationsHandler = handlers.NewConversationsHandler(s.store, s.logger)
	s.catalogHandler = handlers.NewCatalogHandler(s.logger)
	s.sessionHandler = handlers.NewSessionHandler(
		s.store, s.stt, s.tts, s.completer, s.metricsCollector,
		handlers.SessionConfig{
			HistoryTokenBudget: s.cfg.Voice.HistoryTokenBudget,
			MaxAudioBytes:      s.cfg.Voice.MaxAudioBytes,
			AudioMimeType:      s.cfg.Voice.AudioMimeType,
		},
		s.logger,
	)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 注册路由并启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReadyz)

	// 语音与补全代理
	mux.HandleFunc("POST /v1/speech/transcriptions", s.speechHandler.HandleTranscription)
	mux.HandleFunc("POST /v1/speech/synthesize", s.speechHandler.HandleSynthesize)
	mux.HandleFunc("POST /v1/chat/response", s.chatHandler.HandleChatResponse)

	// 机器人 CRUD
	mux.HandleFunc("POST /v1/bots", s.botsHandler.HandleCreate)
	mux.HandleFunc("GET /v1/bots", s.botsHandler.HandleList)
	mux.HandleFunc("GET /v1/bots/{id}", s.botsHandler.HandleGet)
	mux.HandleFunc("PATCH /v1/bots/{id}", s.botsHandler.HandleUpdate)
	mux.HandleFunc("DELETE /v1/bots/{id}", s.botsHandler.HandleDelete)

	// 语音会话（WebSocket）
	mux.HandleFunc("GET /v1/bots/{id}/session", s.sessionHandler.HandleSession)

	// 对话与统计
	mux.HandleFunc("GET /v1/conversations", s.conversationsHandler.HandleList)
	mux.HandleFunc("GET /v1/conversations/{id}", s.conversationsHandler.HandleGet)
	mux.HandleFunc("POST /v1/conversations/{id}/end", s.conversationsHandler.HandleEnd)
	mux.HandleFunc("GET /v1/dashboard/stats", s.conversationsHandler.HandleStats)

	// 音色与模型目录
	mux.HandleFunc("GET /v1/voices", s.catalogHandler.HandleVoices)
	mux.HandleFunc("GET /v1/models", s.catalogHandler.HandleModels)

	// 构建中间件链
	skipAuthPaths := []string{"/healthz", "/readyz"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		Auth(s.cfg.Auth, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout: s.cfg.Server.ReadTimeout,
		// 语音会话是长连接，写超时由会话层自行控制
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager("http", handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	// Collector 持有独立的 registry，不走默认全局 registry
	mux.Handle("/metrics", promhttp.HandlerFor(s.metricsCollector.Registry(), promhttp.HandlerOpts{}))

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager("metrics", mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭遥测
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 5. 释放外部连接
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Redis shutdown error", zap.Error(err))
		}
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
