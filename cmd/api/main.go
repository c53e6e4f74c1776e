// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/inkpost/internal/auth"
	"github.com/yourusername/inkpost/internal/config"
	"github.com/yourusername/inkpost/internal/logging"
	"github.com/yourusername/inkpost/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 設定の読み込み（ロガー生成前なので標準 log で落とす）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.AuthSecret == "" {
		logger.Warn("AUTH_SECRET is not set; login will fail until it is configured")
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(logging.GinMiddleware(logger), gin.Recovery())

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		auth.CSRFHeader,
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{auth.CSRFHeader, logging.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	limiter, closeLimiter, err := newLimiter(cfg)
	if err != nil {
		logger.Fatal("failed to set up login limiter", zap.Error(err))
	}
	defer closeLimiter()

	var registry *prometheus.Registry
	var authMetrics *metrics.Auth
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		authMetrics = metrics.NewAuth(registry)
	}

	if err := setupRoutes(router, routeDeps{
		cfg:      cfg,
		logger:   logger,
		limiter:  limiter,
		metrics:  authMetrics,
		registry: registry,
	}); err != nil {
		logger.Fatal("failed to set up routes", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting API server", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newLimiter は LOGIN_LIMIT_REDIS_URL があれば Redis、無ければメモリの制限器を返します。
func newLimiter(cfg *config.Config) (auth.AttemptLimiter, func(), error) {
	limiterCfg := auth.LimiterConfig{
		MaxAttempts:  cfg.LoginMaxAttempts,
		Window:       cfg.LoginWindow,
		LockDuration: cfg.LoginLockDuration,
	}
	if cfg.LoginLimitRedisURL == "" {
		return auth.NewMemoryLimiter(limiterCfg), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.LoginLimitRedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opt)
	return auth.NewRedisLimiter(client, limiterCfg), func() { _ = client.Close() }, nil
}
