package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/promptflow/api/handlers"
	"github.com/BaSui01/promptflow/config"
	"github.com/BaSui01/promptflow/internal/cache"
	"github.com/BaSui01/promptflow/internal/metrics"
	"github.com/BaSui01/promptflow/internal/ratelimit"
	"github.com/BaSui01/promptflow/internal/server"
	"github.com/BaSui01/promptflow/llm"
	"github.com/BaSui01/promptflow/llm/embedding"
	"github.com/BaSui01/promptflow/llm/retry"
	"github.com/BaSui01/promptflow/refine"
	"github.com/BaSui01/promptflow/storage"
	"github.com/BaSui01/promptflow/types"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 PromptFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 基础设施
	redisClient *redis.Client
	hybridStore *storage.HybridStore
	limiter     *ratelimit.Limiter

	// Handlers
	healthHandler *handlers.HealthHandler
	refineHandler *handlers.RefineHandler
	searchHandler *handlers.SearchHandler
	adminHandler  *handlers.AdminHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("promptflow", s.logger)

	// 2. 初始化基础设施与 Handlers
	if err := s.initComponents(); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}

	// 3. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("migration_read_percentage", s.cfg.Migration.ReadPercentage),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initComponents 初始化存储、缓存、限流、上游与全部 handlers
func (s *Server) initComponents() error {
	// Redis 客户端（缓存、限流、键值存储共用）
	s.redisClient = redis.NewClient(&redis.Options{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	})

	// 键值存储（权威端）
	redisStore := storage.NewInstrumentedStore(
		storage.NewRedisStore(s.redisClient, s.logger), "redis", s.metricsCollector)

	// 向量化服务与索引存储
	embedder := embedding.NewOpenAIService(embedding.Config{
		APIKey:     s.cfg.LLM.APIKey,
		BaseURL:    s.cfg.LLM.BaseURL,
		Model:      s.cfg.LLM.EmbeddingModel,
		Dimensions: s.cfg.LLM.EmbeddingDims,
		Timeout:    s.cfg.LLM.Timeout,
	}, s.logger)

	rawElasticStore := storage.NewElasticStore(storage.ElasticConfig{
		Host:            s.cfg.Elastic.Host,
		Port:            s.cfg.Elastic.Port,
		Scheme:          s.cfg.Elastic.Scheme,
		BaseURL:         s.cfg.Elastic.BaseURL,
		APIKey:          s.cfg.Elastic.APIKey,
		Index:           s.cfg.Elastic.Index,
		AutoCreateIndex: s.cfg.Elastic.AutoCreateIndex,
		VectorDims:      s.cfg.Elastic.VectorDims,
		Timeout:         s.cfg.Elastic.Timeout,
	}, embedder, s.logger)
	elasticStore := storage.NewInstrumentedStore(rawElasticStore, "elastic", s.metricsCollector)

	// 迁移路由：键值端权威，索引端按百分比承接读流量
	s.hybridStore = storage.NewHybridStore(redisStore, elasticStore, storage.HybridConfig{
		ReadPercentage:   s.cfg.Migration.ReadPercentage,
		ShadowWrite:      s.cfg.Migration.ShadowWrite,
		CompareResults:   s.cfg.Migration.CompareResults,
		AdvanceIncrement: s.cfg.Migration.AdvanceIncrement,
	}, s.logger, storage.WithMetrics(s.metricsCollector))
	s.metricsCollector.SetMigrationReadPercentage(s.cfg.Migration.ReadPercentage)

	// 响应缓存
	respCache := cache.New(s.redisClient, cache.Config{
		Enabled: s.cfg.Cache.Enabled,
		TTL:     s.cfg.Cache.TTL,
	}, s.logger)

	// 固定窗口限流器
	s.limiter = ratelimit.New(s.redisClient, ratelimit.Config{
		Threshold: s.cfg.RateLimit.Threshold,
		Window:    s.cfg.RateLimit.Window,
	}, s.logger)

	// 上游 Provider 与重试控制器
	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:  s.cfg.LLM.APIKey,
		BaseURL: s.cfg.LLM.BaseURL,
		Model:   s.cfg.LLM.Model,
		Timeout: s.cfg.LLM.Timeout,
	}, s.logger)

	policy := retry.DefaultPolicy()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.metricsCollector.RecordLLMRetry(provider.Name(), string(types.GetErrorCode(err)))
	}
	retryCtl := retry.NewController(policy, s.logger)

	// 精炼编排器
	refineService := refine.New(provider, s.hybridStore, respCache, retryCtl, refine.Config{
		TestMode:           s.cfg.IsTestEnvironment(),
		RelatedLimit:       s.cfg.Refine.RelatedLimit,
		ContextTokenBudget: s.cfg.Refine.ContextTokenBudget,
		TokenizerEncoding:  s.cfg.Refine.TokenizerEncoding,
	}, s.logger, refine.WithMetrics(s.metricsCollector))

	// Handlers
	s.refineHandler = handlers.NewRefineHandler(refineService, s.logger)
	s.searchHandler = handlers.NewSearchHandler(s.hybridStore, s.logger)
	s.adminHandler = handlers.NewAdminHandler(s.hybridStore, s.metricsCollector, s.logger)

	// 健康检查：Redis 权威端、Elasticsearch 索引端、上游 Provider
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("redis", func(ctx context.Context) error {
		return s.redisClient.Ping(ctx).Err()
	}))
	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("elasticsearch", rawElasticStore.Ping))
	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("llm", provider.Ping))

	s.logger.Info("Components initialized")
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("/refine-prompt", s.refineHandler.HandleRefine)
	mux.HandleFunc("/search/by-topic", s.searchHandler.HandleSearchByTopic)
	mux.HandleFunc("/search/related", s.searchHandler.HandleSearchRelated)

	// ========================================
	// 迁移管理 API（JWT 保护）
	// 管理端点是敏感操作，显式逐个包装认证检查，
	// 不依赖全局中间件链的顺序。
	// ========================================
	adminAuth := JWTAuth(s.cfg.Auth, s.logger)
	mux.Handle("/admin/migration", adminAuth(http.HandlerFunc(s.adminHandler.HandleMigrationStatus)))
	mux.Handle("/admin/migration/advance", adminAuth(http.HandlerFunc(s.adminHandler.HandleAdvance)))
	mux.Handle("/admin/migration/shadow-write", adminAuth(http.HandlerFunc(s.adminHandler.HandleShadowWrite)))
	mux.Handle("/admin/migration/compare", adminAuth(http.HandlerFunc(s.adminHandler.HandleCompareResults)))
	mux.Handle("/admin/storage/clear", adminAuth(http.HandlerFunc(s.adminHandler.HandleClearStorage)))

	// ========================================
	// 构建中间件链
	// ========================================
	skipLimitPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		IPRateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.metricsCollector, s.logger),
		WindowRateLimiter(s.limiter, skipLimitPaths, s.metricsCollector, s.logger),
	)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
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
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
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

	// 执行清理
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

	// 4. 关闭 Redis 连接
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}

	// 5. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
