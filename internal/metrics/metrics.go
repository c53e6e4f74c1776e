// Package metrics は認証まわりの Prometheus メトリクスを提供します。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blog_auth"

// ログイン結果のラベル値
const (
	LoginSuccess = "success"
	LoginInvalid = "invalid"
	LoginLocked  = "locked"
	LoginError   = "error"
)

// ガード拒否理由のラベル値
const (
	DenyUnauthorized = "unauthorized"
	DenyCSRF         = "csrf"
)

// Auth は認証処理で記録するメトリクスの集合です。
// nil レシーバでも呼び出せるので、メトリクス無効時は nil を渡せば良い。
type Auth struct {
	logins  *prometheus.CounterVec
	denials *prometheus.CounterVec
}

// NewAuth は reg にメトリクスを登録して返します。
func NewAuth(reg prometheus.Registerer) *Auth {
	factory := promauto.With(reg)
	return &Auth{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		denials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_denials_total",
			Help:      "Requests denied by the authorization guard by reason",
		}, []string{"reason"}),
	}
}

// ObserveLogin はログイン結果を記録します。
func (m *Auth) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// ObserveDenial はガードによる拒否を記録します。
func (m *Auth) ObserveDenial(reason string) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(reason).Inc()
}
