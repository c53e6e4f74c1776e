package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yourusername/inkpost/internal/auth"
	"github.com/yourusername/inkpost/internal/config"
	"github.com/yourusername/inkpost/internal/metrics"
	"github.com/yourusername/inkpost/internal/session"
)

type routeDeps struct {
	cfg      *config.Config
	logger   *zap.Logger
	limiter  auth.AttemptLimiter
	metrics  *metrics.Auth
	registry *prometheus.Registry // nil なら /metrics を公開しない
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "inkpost-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, deps routeDeps) error {
	router.GET("/health", handleHealth)
	if deps.registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{})))
	}

	authority := session.NewAuthority(deps.cfg.AuthSecret)
	guard := auth.NewGuard(authority, deps.metrics)
	handler, err := auth.NewHandler(auth.HandlerOptions{
		Authority:    authority,
		PasswordHash: deps.cfg.AppPasswordHash,
		Cookies:      session.NewCookiePolicy(deps.cfg.IsProduction()),
		Limiter:      deps.limiter,
		Metrics:      deps.metrics,
		Logger:       deps.logger,
	})
	if err != nil {
		return err
	}

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", handler.Login)
			authRoutes.POST("/logout", guard.Protect(), handler.Logout)
			authRoutes.GET("/session", guard.RequireLogin(), handler.Session)
		}

		// 記事・タグ・カテゴリ・画像・設定などの管理 API はここにぶら下げる
		admin := api.Group("/admin")
		admin.Use(guard.Protect())
		{
			admin.GET("/ping", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})
		}
	}
	return nil
}
