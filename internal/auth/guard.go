// Package auth は管理画面の認証・認可機能を提供します。
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/inkpost/internal/metrics"
	"github.com/yourusername/inkpost/internal/session"
)

// CSRFHeader は状態変更リクエストで CSRF トークンを受け取るヘッダーです。
const CSRFHeader = "X-CSRF-Token"

// SessionVerifier はセッショントークンの有効性を判定します。
type SessionVerifier interface {
	VerifySession(token string) bool
}

// Denial はガードが返す拒否レスポンスです。nil なら処理を続行します。
type Denial struct {
	Status int    `json:"-"`
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
}

var (
	// 認証失敗の理由（期限切れ・改ざん・形式不正）は区別しない
	denyUnauthorized = Denial{Status: http.StatusUnauthorized, Error: "Unauthorized"}
	denyCSRF         = Denial{Status: http.StatusForbidden, Error: "Forbidden", Code: "CSRF_INVALID"}
)

// Guard はリクエストごとの認可判定を行います。
// 判定関数はリクエストの Cookie/ヘッダーと署名鍵だけを見て、状態を変更しません。
type Guard struct {
	verifier SessionVerifier
	metrics  *metrics.Auth
}

// NewGuard は Guard を作成します。m は nil でも構いません。
func NewGuard(verifier SessionVerifier, m *metrics.Auth) *Guard {
	return &Guard{verifier: verifier, metrics: m}
}

// IsAuthenticated はセッション Cookie が有効かを返します。
func (g *Guard) IsAuthenticated(r *http.Request) bool {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	return g.verifier.VerifySession(cookie.Value)
}

// RequireAuth は未認証なら 401 の Denial を返します。
func (g *Guard) RequireAuth(r *http.Request) *Denial {
	if !g.IsAuthenticated(r) {
		d := denyUnauthorized
		return &d
	}
	return nil
}

// RequireAuthWithCSRF は認証に加えて CSRF トークンを検証します。
// 認証失敗は 401、CSRF 不一致は 403 で区別します。
func (g *Guard) RequireAuthWithCSRF(r *http.Request, csrfHeaderValue string) *Denial {
	if d := g.RequireAuth(r); d != nil {
		return d
	}

	var expected string
	if cookie, err := r.Cookie(session.CSRFCookieName); err == nil {
		expected = cookie.Value
	}
	if !VerifyCSRF(expected, csrfHeaderValue) {
		d := denyCSRF
		return &d
	}
	return nil
}

// VerifyCSRF は Cookie とヘッダーの CSRF トークンが完全一致するかを返します。
func VerifyCSRF(expected, received string) bool {
	if expected == "" || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// RequireLogin は読み取り専用ルート向けのミドルウェアです。
func (g *Guard) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if d := g.RequireAuth(c.Request); d != nil {
			g.abort(c, d)
			return
		}
		c.Next()
	}
}

// Protect はルートグループ向けのミドルウェアです。
// 安全なメソッドは認証のみ、状態変更系は認証と CSRF を検証します。
func (g *Guard) Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		var d *Denial
		if isSafeMethod(c.Request.Method) {
			d = g.RequireAuth(c.Request)
		} else {
			d = g.RequireAuthWithCSRF(c.Request, c.GetHeader(CSRFHeader))
		}
		if d != nil {
			g.abort(c, d)
			return
		}
		c.Next()
	}
}

func (g *Guard) abort(c *gin.Context, d *Denial) {
	if d.Status == http.StatusForbidden {
		g.metrics.ObserveDenial(metrics.DenyCSRF)
	} else {
		g.metrics.ObserveDenial(metrics.DenyUnauthorized)
	}
	c.AbortWithStatusJSON(d.Status, d)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
