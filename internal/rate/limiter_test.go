package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

// loginAttempts reads the login-name counter straight from Redis.
func loginAttempts(t *testing.T, l *Limiter, login string) int {
	t.Helper()
	n, err := l.redis.Get(context.Background(), l.loginKey(login)).Int()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		t.Fatalf("read login counter: %v", err)
	}
	return n
}

func TestLoginBudgetFixedWindow(t *testing.T) {
	l, mr := newTestLimiter(t, Config{
		EnableIPThrottle: true,
		MaxLoginAttempts: 5,
		LoginWindow:      10 * time.Second,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.CheckLogin(ctx, "alice", "1.2.3.4"); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i+1, err)
		}
		if err := l.IncrementLogin(ctx, "alice", "1.2.3.4"); err != nil {
			t.Fatalf("increment %d: %v", i+1, err)
		}
	}

	if err := l.CheckLogin(ctx, "alice", "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after budget spent, got %v", err)
	}
	if err := l.CheckLogin(ctx, "bob", "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP budget to limit other logins, got %v", err)
	}
	if err := l.CheckLogin(ctx, "bob", "5.6.7.8"); err != nil {
		t.Fatalf("expected unrelated login+IP allowed, got %v", err)
	}

	mr.FastForward(11 * time.Second)
	if err := l.CheckLogin(ctx, "alice", "1.2.3.4"); err != nil {
		t.Fatalf("expected window to reset, got %v", err)
	}
}

func TestResetLoginClearsNameCounterOnly(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		EnableIPThrottle: true,
		MaxLoginAttempts: 2,
		LoginWindow:      time.Minute,
	})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "Alice", "9.9.9.9")
	if n := loginAttempts(t, l, "alice"); n != 1 {
		t.Fatalf("expected case-insensitive counter of 1, got %d", n)
	}

	if err := l.ResetLogin(ctx, "alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n := loginAttempts(t, l, "alice"); n != 0 {
		t.Fatalf("expected counter cleared, got %d", n)
	}

	_ = l.IncrementLogin(ctx, "carol", "9.9.9.9")
	if err := l.CheckLogin(ctx, "dave", "9.9.9.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP counter to survive reset, got %v", err)
	}
}

func TestRefreshThrottle(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		EnableRefreshThrottle: true,
		MaxRefreshAttempts:    2,
		RefreshWindow:         time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckRefresh(ctx, "d1"); err != nil {
			t.Fatalf("refresh %d: %v", i+1, err)
		}
	}
	if err := l.CheckRefresh(ctx, "d1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	disabled, _ := newTestLimiter(t, Config{})
	for i := 0; i < 10; i++ {
		if err := disabled.CheckRefresh(ctx, "d1"); err != nil {
			t.Fatalf("disabled throttle must not limit: %v", err)
		}
	}
}
