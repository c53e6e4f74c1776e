package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/inkpost/internal/logging"
	"github.com/yourusername/inkpost/internal/metrics"
	"github.com/yourusername/inkpost/internal/password"
	"github.com/yourusername/inkpost/internal/session"
)

// Handler は /api/auth/* のハンドラーをまとめた構造体です。
type Handler struct {
	authority    *session.Authority
	passwordHash string
	cookies      session.CookiePolicy
	limiter      AttemptLimiter
	metrics      *metrics.Auth
	logger       *zap.Logger
}

// HandlerOptions は Handler の依存関係です。
type HandlerOptions struct {
	Authority    *session.Authority
	PasswordHash string // APP_PASSWORD_HASH
	Cookies      session.CookiePolicy
	Limiter      AttemptLimiter
	Metrics      *metrics.Auth // nil 可
	Logger       *zap.Logger   // nil 可
}

// NewHandler は Handler を作成します。
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Authority == nil {
		return nil, errors.New("authority is nil")
	}
	if opts.Limiter == nil {
		return nil, errors.New("limiter is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		authority:    opts.Authority,
		passwordHash: opts.PasswordHash,
		cookies:      opts.Cookies,
		limiter:      opts.Limiter,
		metrics:      opts.Metrics,
		logger:       logger,
	}, nil
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login は POST /api/auth/login のハンドラーです。
func (h *Handler) Login(c *gin.Context) {
	log := logging.FromContext(c, h.logger)

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "password を JSON で送ってください",
		})
		return
	}

	if h.passwordHash == "" {
		log.Error("login rejected: APP_PASSWORD_HASH is not configured")
		h.metrics.ObserveLogin(metrics.LoginError)
		respondMisconfigured(c)
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()
	retryAfter, err := h.limiter.Check(ctx, ip)
	if err != nil {
		log.Error("login limiter check failed", zap.Error(err))
		h.metrics.ObserveLogin(metrics.LoginError)
		respondInternal(c)
		return
	}
	if retryAfter > 0 {
		h.metrics.ObserveLogin(metrics.LoginLocked)
		// Retry-After は秒数で返す（切り上げ）
		c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(retryAfter.Seconds())), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "一定時間後に再度お試しください",
		})
		return
	}

	if !password.Verify(req.Password, h.passwordHash) {
		remaining, err := h.limiter.RecordFailure(ctx, ip)
		if err != nil {
			log.Error("failed to record login failure", zap.Error(err))
		}
		log.Warn("login failed", zap.String("clientIp", ip), zap.Int("remainingAttempts", remaining))
		h.metrics.ObserveLogin(metrics.LoginInvalid)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":              "INVALID_CREDENTIALS",
			"message":           "パスワードが正しくありません",
			"remainingAttempts": remaining,
		})
		return
	}

	if err := h.limiter.Reset(ctx, ip); err != nil {
		log.Warn("failed to reset login attempts", zap.Error(err))
	}

	token, err := h.authority.CreateSession()
	if err != nil {
		// 原因はクライアントに返さずログにだけ残す
		log.Error("failed to create session", zap.Error(err))
		h.metrics.ObserveLogin(metrics.LoginError)
		respondMisconfigured(c)
		return
	}

	csrfToken, err := generateToken()
	if err != nil {
		log.Error("failed to generate csrf token", zap.Error(err))
		h.metrics.ObserveLogin(metrics.LoginError)
		respondInternal(c)
		return
	}

	http.SetCookie(c.Writer, h.cookies.SessionCookie(token))
	http.SetCookie(c.Writer, h.cookies.CSRFCookie(csrfToken))
	c.Header(CSRFHeader, csrfToken)

	h.metrics.ObserveLogin(metrics.LoginSuccess)
	log.Info("login succeeded", zap.String("clientIp", ip))
	c.JSON(http.StatusOK, gin.H{"csrfToken": csrfToken})
}

// Logout は POST /api/auth/logout のハンドラーです。
// トークンはステートレスなので、Cookie を消すだけで完了します。
func (h *Handler) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, h.cookies.ClearCookie())
	http.SetCookie(c.Writer, h.cookies.ClearCSRFCookie())
	c.Status(http.StatusNoContent)
}

// Session は GET /api/auth/session のハンドラーです。
// RequireLogin の後ろに置く前提で、expiresAt を返すためだけに payload を読み直します。
func (h *Handler) Session(c *gin.Context) {
	var token string
	if cookie, err := c.Request.Cookie(session.CookieName); err == nil {
		token = cookie.Value
	}
	payload, ok := h.authority.Inspect(token)
	if !ok {
		// ガードなしでマウントされた場合も未認証として扱う
		c.AbortWithStatusJSON(http.StatusUnauthorized, denyUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"expiresAt":     payload.ExpiresAt,
	})
}

func respondMisconfigured(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "SERVER_MISCONFIGURATION",
		"message": "サーバー設定に問題があるためログインできません",
	})
}

func respondInternal(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "ログイン処理に失敗しました",
	})
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
