package session

import (
	"net/http"
)

const (
	// CookieName はセッショントークンを運ぶ Cookie 名です。
	CookieName = "admin_session"
	// CSRFCookieName はダブルサブミット用の CSRF トークン Cookie 名です（HttpOnly なし）。
	CSRFCookieName = "csrf_token"
)

// CookiePolicy は Cookie の属性を決めます。
type CookiePolicy struct {
	// Secure は本番環境でのみ true にします。
	Secure bool
}

// NewCookiePolicy は実行環境に応じた CookiePolicy を返します。
func NewCookiePolicy(production bool) CookiePolicy {
	return CookiePolicy{Secure: production}
}

// MaxAgeSeconds はセッション Cookie の Max-Age（604800秒）です。
func MaxAgeSeconds() int {
	return int(Duration.Seconds())
}

// SessionCookie はセッショントークンを保存する Cookie を返します。
func (p CookiePolicy) SessionCookie(token string) *http.Cookie {
	return p.build(CookieName, token, MaxAgeSeconds(), true)
}

// ClearCookie はセッション Cookie を削除するための Cookie を返します。
func (p CookiePolicy) ClearCookie() *http.Cookie {
	return p.build(CookieName, "", -1, true)
}

// CSRFCookie はフロントエンドから読める CSRF トークン Cookie を返します。
func (p CookiePolicy) CSRFCookie(token string) *http.Cookie {
	return p.build(CSRFCookieName, token, MaxAgeSeconds(), false)
}

// ClearCSRFCookie は CSRF トークン Cookie を削除するための Cookie を返します。
func (p CookiePolicy) ClearCSRFCookie() *http.Cookie {
	return p.build(CSRFCookieName, "", -1, false)
}

// net/http では MaxAge < 0 が "Max-Age=0"（即時削除）として出力される
func (p CookiePolicy) build(name, value string, maxAge int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   p.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
