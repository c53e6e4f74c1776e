package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MaxAttempts:  3,
		Window:       time.Minute,
		LockDuration: 5 * time.Minute,
	}
}

func TestMemoryLimiterLocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(testLimiterConfig())
	limiter.now = func() time.Time { return now }

	for want := 2; want >= 0; want-- {
		remaining, err := limiter.RecordFailure(ctx, "198.51.100.1")
		if err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
		if remaining != want {
			t.Fatalf("remaining = %d, want %d", remaining, want)
		}
	}

	retryAfter, err := limiter.Check(ctx, "198.51.100.1")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if retryAfter != 5*time.Minute {
		t.Fatalf("retryAfter = %v, want 5m", retryAfter)
	}
	if other, _ := limiter.Check(ctx, "198.51.100.2"); other != 0 {
		t.Fatalf("unrelated key locked for %v", other)
	}

	now = now.Add(5 * time.Minute)
	if retryAfter, _ := limiter.Check(ctx, "198.51.100.1"); retryAfter != 0 {
		t.Fatalf("lock still active after lock duration: %v", retryAfter)
	}
}

func TestMemoryLimiterWindowResets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(testLimiterConfig())
	limiter.now = func() time.Time { return now }

	_, _ = limiter.RecordFailure(ctx, "ip")
	_, _ = limiter.RecordFailure(ctx, "ip")
	now = now.Add(2 * time.Minute)

	remaining, _ := limiter.RecordFailure(ctx, "ip")
	if remaining != 2 {
		t.Fatalf("remaining = %d, want 2 after window elapsed", remaining)
	}
}

func TestMemoryLimiterReset(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(testLimiterConfig())
	_, _ = limiter.RecordFailure(ctx, "ip")
	_, _ = limiter.RecordFailure(ctx, "ip")
	if err := limiter.Reset(ctx, "ip"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if remaining, _ := limiter.RecordFailure(ctx, "ip"); remaining != 2 {
		t.Fatalf("remaining = %d, want 2 after reset", remaining)
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiterLocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, testLimiterConfig())

	for want := 2; want >= 0; want-- {
		remaining, err := limiter.RecordFailure(ctx, "203.0.113.9")
		if err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
		if remaining != want {
			t.Fatalf("remaining = %d, want %d", remaining, want)
		}
	}

	retryAfter, err := limiter.Check(ctx, "203.0.113.9")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if retryAfter <= 0 || retryAfter > 5*time.Minute {
		t.Fatalf("retryAfter = %v, want (0, 5m]", retryAfter)
	}

	mr.FastForward(5*time.Minute + time.Second)
	if retryAfter, err := limiter.Check(ctx, "203.0.113.9"); err != nil || retryAfter != 0 {
		t.Fatalf("Check after lock = (%v, %v), want (0, nil)", retryAfter, err)
	}
}

func TestRedisLimiterWindowExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, testLimiterConfig())

	_, _ = limiter.RecordFailure(ctx, "ip")
	_, _ = limiter.RecordFailure(ctx, "ip")
	mr.FastForward(time.Minute + time.Second)

	remaining, err := limiter.RecordFailure(ctx, "ip")
	if err != nil {
		t.Fatalf("RecordFailure returned error: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("remaining = %d, want 2 after window expired", remaining)
	}
}

func TestRedisLimiterReset(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, testLimiterConfig())

	_, _ = limiter.RecordFailure(ctx, "ip")
	if err := limiter.Reset(ctx, "ip"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if mr.Exists(failKeyPrefix + "ip") {
		t.Fatal("failure counter still present after reset")
	}
}

func TestRedisLimiterReportsConnectionErrors(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, testLimiterConfig())
	mr.Close()

	if _, err := limiter.Check(ctx, "ip"); err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}

type limiterBackend struct {
	name    string
	limiter AttemptLimiter
	advance func(time.Duration)
}

func newLimiterBackends(t *testing.T, cfg LimiterConfig) []limiterBackend {
	t.Helper()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	memory := NewMemoryLimiter(cfg)
	memory.now = func() time.Time { return now }

	mr, client := newTestRedis(t)

	return []limiterBackend{
		{name: "memory", limiter: memory, advance: func(d time.Duration) { now = now.Add(d) }},
		{name: "redis", limiter: NewRedisLimiter(client, cfg), advance: mr.FastForward},
	}
}

func TestLimitersStartFreshWindowAfterLockExpires(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultLimiterConfig()

	for _, backend := range newLimiterBackends(t, cfg) {
		t.Run(backend.name, func(t *testing.T) {
			for i := 0; i < cfg.MaxAttempts; i++ {
				if _, err := backend.limiter.RecordFailure(ctx, "192.0.2.10"); err != nil {
					t.Fatalf("RecordFailure returned error: %v", err)
				}
			}
			if retryAfter, _ := backend.limiter.Check(ctx, "192.0.2.10"); retryAfter <= 0 {
				t.Fatal("expected the key to be locked")
			}

			backend.advance(cfg.LockDuration + time.Second)

			remaining, err := backend.limiter.RecordFailure(ctx, "192.0.2.10")
			if err != nil {
				t.Fatalf("RecordFailure returned error: %v", err)
			}
			if remaining != cfg.MaxAttempts-1 {
				t.Fatalf("remaining = %d, want %d", remaining, cfg.MaxAttempts-1)
			}
			if retryAfter, _ := backend.limiter.Check(ctx, "192.0.2.10"); retryAfter != 0 {
				t.Fatalf("locked again after one failure: %v", retryAfter)
			}
		})
	}
}

func TestLimitersIgnoreFailuresWhileLocked(t *testing.T) {
	ctx := context.Background()
	cfg := testLimiterConfig()

	for _, backend := range newLimiterBackends(t, cfg) {
		t.Run(backend.name, func(t *testing.T) {
			for i := 0; i < cfg.MaxAttempts; i++ {
				_, _ = backend.limiter.RecordFailure(ctx, "ip")
			}
			if remaining, err := backend.limiter.RecordFailure(ctx, "ip"); err != nil || remaining != 0 {
				t.Fatalf("RecordFailure while locked = (%d, %v), want (0, nil)", remaining, err)
			}

			backend.advance(cfg.LockDuration + time.Second)
			if remaining, _ := backend.limiter.RecordFailure(ctx, "ip"); remaining != cfg.MaxAttempts-1 {
				t.Fatalf("remaining = %d, want %d", remaining, cfg.MaxAttempts-1)
			}
		})
	}
}

func TestRedisLimiterFailureCounterAlwaysHasTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, testLimiterConfig())

	for i := 0; i < 2; i++ {
		if _, err := limiter.RecordFailure(ctx, "ip"); err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
		ttl := mr.TTL(failKeyPrefix + "ip")
		if ttl <= 0 || ttl > time.Minute {
			t.Fatalf("failure counter ttl = %v, want (0, 1m]", ttl)
		}
	}
}

func TestMemoryLimiterDropsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := testLimiterConfig()
	limiter := NewMemoryLimiter(cfg)
	limiter.now = func() time.Time { return now }

	for _, ip := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		_, _ = limiter.RecordFailure(ctx, ip)
	}
	for i := 0; i < cfg.MaxAttempts; i++ {
		_, _ = limiter.RecordFailure(ctx, "198.51.100.4")
	}

	now = now.Add(cfg.Window + time.Second)
	_, _ = limiter.RecordFailure(ctx, "198.51.100.9")

	limiter.lock.Lock()
	size := len(limiter.attempts)
	limiter.lock.Unlock()
	// 198.51.100.4 はまだロック中なので残る
	if size != 2 {
		t.Fatalf("entries = %d, want 2", size)
	}

	now = now.Add(cfg.LockDuration)
	if retryAfter, _ := limiter.Check(ctx, "198.51.100.4"); retryAfter != 0 {
		t.Fatalf("lock still active: %v", retryAfter)
	}
	limiter.lock.Lock()
	_, stillThere := limiter.attempts["198.51.100.4"]
	limiter.lock.Unlock()
	if stillThere {
		t.Fatal("expired entry not removed by Check")
	}
}
