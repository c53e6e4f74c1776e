package session

import (
	"errors"
	"time"
)

// Duration はセッションの有効期間（7日）です。
const Duration = 7 * 24 * time.Hour

// ErrMissingSecret は署名鍵が未設定のままセッションを発行しようとした場合のエラーです。
// リクエスト単位では回復できない設定エラーとして扱います。
var ErrMissingSecret = errors.New("session: AUTH_SECRET is not configured")

// Authority はセッショントークンの発行と検証を担います。
// 保持するのは読み取り専用の署名鍵だけなので、並行利用にロックは不要です。
type Authority struct {
	secret []byte
	now    func() time.Time
}

// Option は Authority の設定を変更します。
type Option func(*Authority)

// WithClock は現在時刻の取得方法を差し替えます（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// NewAuthority は署名鍵を受け取って Authority を作成します。
// 鍵が空でも作成はできますが、発行は ErrMissingSecret になり、検証は常に失敗します。
func NewAuthority(secret string, opts ...Option) *Authority {
	a := &Authority{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateSession は認証済みを表す新しいトークンを発行します。
func (a *Authority) CreateSession() (string, error) {
	if len(a.secret) == 0 {
		return "", ErrMissingSecret
	}
	return encodeToken(a.secret, Payload{
		Authenticated: true,
		ExpiresAt:     a.now().Add(Duration).Unix(),
	})
}

// VerifySession はトークンが有効かを返します。
// 形式不正・改ざん・期限切れはすべて false で、panic もエラーも返しません。
func (a *Authority) VerifySession(token string) bool {
	_, ok := a.Inspect(token)
	return ok
}

// Inspect は有効なトークンの payload を返します。
func (a *Authority) Inspect(token string) (Payload, bool) {
	if len(a.secret) == 0 {
		return Payload{}, false
	}
	payload, ok := decodeToken(a.secret, token)
	if !ok {
		return Payload{}, false
	}
	if payload.ExpiresAt < a.now().Unix() {
		return Payload{}, false
	}
	if !payload.Authenticated {
		return Payload{}, false
	}
	return payload, true
}
