package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimiterConfig はログイン試行制限の設定です。
type LimiterConfig struct {
	MaxAttempts  int           // ロックまでの失敗回数
	Window       time.Duration // 失敗回数を数える期間
	LockDuration time.Duration // ロック期間
}

// DefaultLimiterConfig は 5回/15分 で 10分ロックする設定です。
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MaxAttempts:  5,
		Window:       15 * time.Minute,
		LockDuration: 10 * time.Minute,
	}
}

// AttemptLimiter はクライアント単位のログイン失敗回数を管理します。
type AttemptLimiter interface {
	// Check はロック中なら残り時間を返します（ロックされていなければ 0）。
	Check(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録し、ロックまでの残り回数を返します。
	RecordFailure(ctx context.Context, key string) (int, error)
	// Reset はログイン成功時に記録を消去します。
	Reset(ctx context.Context, key string) error
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// MemoryLimiter はプロセス内で試行回数を管理します。単一インスタンス向けです。
type MemoryLimiter struct {
	cfg       LimiterConfig
	now       func() time.Time
	lock      sync.Mutex
	attempts  map[string]*attemptState
	lastSweep time.Time
}

// NewMemoryLimiter は MemoryLimiter を作成します。
func NewMemoryLimiter(cfg LimiterConfig) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:      cfg,
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
}

// Check implements AttemptLimiter.
func (m *MemoryLimiter) Check(_ context.Context, key string) (time.Duration, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		return 0, nil
	}
	now := m.now()
	if m.expired(state, now) {
		delete(m.attempts, key)
		return 0, nil
	}
	if !now.Before(state.lockedUntil) {
		return 0, nil
	}
	return state.lockedUntil.Sub(now), nil
}

// RecordFailure implements AttemptLimiter.
func (m *MemoryLimiter) RecordFailure(_ context.Context, key string) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	m.sweep(now)

	state, ok := m.attempts[key]
	if ok && now.Before(state.lockedUntil) {
		// ロック中の失敗は数えない
		return 0, nil
	}
	if !ok || now.Sub(state.firstAttempt) > m.cfg.Window {
		state = &attemptState{firstAttempt: now}
		m.attempts[key] = state
	}

	state.count++
	if state.count >= m.cfg.MaxAttempts {
		// ロック解除後は新しい期間で数え直す（RedisLimiter と同じ規則）
		m.attempts[key] = &attemptState{lockedUntil: now.Add(m.cfg.LockDuration)}
		return 0, nil
	}

	return remainingAttempts(m.cfg.MaxAttempts, state.count), nil
}

// expired は失敗回数の期間もロックも終わったエントリかを返します。
func (m *MemoryLimiter) expired(state *attemptState, now time.Time) bool {
	return now.Sub(state.firstAttempt) > m.cfg.Window && !now.Before(state.lockedUntil)
}

// sweep は期限切れのエントリを消します。走査は Window ごとに1回まで。
func (m *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.cfg.Window {
		return
	}
	m.lastSweep = now
	for key, state := range m.attempts {
		if m.expired(state, now) {
			delete(m.attempts, key)
		}
	}
}

// Reset implements AttemptLimiter.
func (m *MemoryLimiter) Reset(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, key)
	return nil
}

const (
	failKeyPrefix = "login:fail:"
	lockKeyPrefix = "login:lock:"
)

// recordFailureScript は失敗回数の加算・期限設定・ロックを1回の呼び出しで行う。
// KEYS[1]=失敗カウンタ KEYS[2]=ロック ARGV[1]=Window(ms) ARGV[2]=LockDuration(ms) ARGV[3]=MaxAttempts
var recordFailureScript = redis.NewScript(`
local max = tonumber(ARGV[3])
if redis.call('EXISTS', KEYS[2]) == 1 then
	return max
end
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
if n >= max then
	redis.call('SET', KEYS[2], '1', 'PX', ARGV[2])
	redis.call('DEL', KEYS[1])
end
return n
`)

// RedisLimiter は Redis で試行回数を共有します。複数インスタンス構成向けです。
type RedisLimiter struct {
	rdb *redis.Client
	cfg LimiterConfig
}

// NewRedisLimiter は RedisLimiter を作成します。
func NewRedisLimiter(rdb *redis.Client, cfg LimiterConfig) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, cfg: cfg}
}

// Check implements AttemptLimiter.
func (l *RedisLimiter) Check(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.rdb.PTTL(ctx, lockKeyPrefix+key).Result()
	if err != nil {
		return 0, err
	}
	// キーが無い場合は負の値が返る
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// RecordFailure implements AttemptLimiter.
func (l *RedisLimiter) RecordFailure(ctx context.Context, key string) (int, error) {
	count, err := recordFailureScript.Run(ctx, l.rdb,
		[]string{failKeyPrefix + key, lockKeyPrefix + key},
		l.cfg.Window.Milliseconds(),
		l.cfg.LockDuration.Milliseconds(),
		l.cfg.MaxAttempts,
	).Int()
	if err != nil {
		return 0, err
	}
	return remainingAttempts(l.cfg.MaxAttempts, count), nil
}

// Reset implements AttemptLimiter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, failKeyPrefix+key, lockKeyPrefix+key).Err()
}

func remainingAttempts(limit, count int) int {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
