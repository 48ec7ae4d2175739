package deviceauth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/deviceauth/password"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testUserProvider struct {
	mu      sync.Mutex
	byLogin map[string]UserRecord
	updates map[string]string
}

func newTestUserProvider(t testing.TB, logins ...string) *testUserProvider {
	t.Helper()
	hasher, err := password.NewArgon2(fastPasswordConfig().argon2())
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	up := &testUserProvider{byLogin: map[string]UserRecord{}, updates: map[string]string{}}
	for _, login := range logins {
		hash, err := hasher.Hash("pw-" + login)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		up.byLogin[login] = UserRecord{
			UserID:       "u-" + login,
			Login:        login,
			Email:        login + "@example.com",
			PasswordHash: hash,
		}
	}
	return up
}

func (p *testUserProvider) GetUserByLogin(_ context.Context, login string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byLogin[login]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (p *testUserProvider) GetUserByID(_ context.Context, id string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.byLogin {
		if u.UserID == id {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (p *testUserProvider) remove(login string) {
	p.mu.Lock()
	delete(p.byLogin, login)
	p.mu.Unlock()
}

func fastPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		BcryptCost:  4,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789")
	cfg.JWT.AccessTTL = 10 * time.Second
	cfg.JWT.RefreshTTL = 20 * time.Second
	cfg.Password = fastPasswordConfig()
	cfg.Session.RedisPrefix = "test"
	return cfg
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

type engineFixture struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
	users  *testUserProvider
}

func newEngineFixture(t testing.TB, cfg Config, sink AuditSink) *engineFixture {
	t.Helper()
	mr, rdb := newTestRedis(t)
	clock := newTestClock()
	users := newTestUserProvider(t, "alice", "bob")

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithClock(clock).
		WithAuditSink(sink).
		Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	})
	return &engineFixture{engine: engine, mr: mr, rdb: rdb, clock: clock, users: users}
}

func (f *engineFixture) login(t *testing.T, login, ua string) TokenPair {
	t.Helper()
	pair, err := f.engine.Login(context.Background(), login, "pw-"+login, Client{IP: "1.2.3.4", UserAgent: ua})
	if err != nil {
		t.Fatalf("login %s: %v", login, err)
	}
	return pair
}

func countKeys(t *testing.T, mr *miniredis.Miniredis, prefix string) int {
	t.Helper()
	n := 0
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}
