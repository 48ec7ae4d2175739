package test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/deviceauth"
	"github.com/MrEthical07/deviceauth/password"
	"github.com/MrEthical07/deviceauth/session"
	"github.com/MrEthical07/deviceauth/session/badgerstore"
	"github.com/MrEthical07/deviceauth/userstore"
)

// backend is one session store implementation under test. rdb is always
// set since the engine keeps rate limit counters in Redis regardless of
// where sessions live.
type backend struct {
	name  string
	setup func(t *testing.T) (deviceauth.SessionStore, redis.UniversalClient)
}

// backends returns miniredis and in-memory badger, plus real Redis when
// REDIS_ADDR (standalone) or REDIS_SENTINEL_ADDRS (sentinel) is set.
func backends(t *testing.T) []backend {
	t.Helper()

	out := []backend{
		{
			name: "redis/miniredis",
			setup: func(t *testing.T) (deviceauth.SessionStore, redis.UniversalClient) {
				rdb := newMiniredis(t)
				return session.NewStore(rdb, "it"), rdb
			},
		},
		{
			name: "badger/memory",
			setup: func(t *testing.T) (deviceauth.SessionStore, redis.UniversalClient) {
				store, err := badgerstore.Open(badgerstore.Config{InMemory: true})
				if err != nil {
					t.Fatalf("badger open: %v", err)
				}
				t.Cleanup(func() { _ = store.Close() })
				return store, newMiniredis(t)
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		out = append(out, backend{
			name: "redis/standalone",
			setup: func(t *testing.T) (deviceauth.SessionStore, redis.UniversalClient) {
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				return session.NewStore(rdb, uniquePrefix()), pingOrSkip(t, rdb)
			},
		})
	}

	if addrs := os.Getenv("REDIS_SENTINEL_ADDRS"); addrs != "" {
		master := os.Getenv("REDIS_SENTINEL_MASTER")
		if master == "" {
			master = "mymaster"
		}
		out = append(out, backend{
			name: "redis/sentinel",
			setup: func(t *testing.T) (deviceauth.SessionStore, redis.UniversalClient) {
				rdb := redis.NewFailoverClient(&redis.FailoverOptions{
					MasterName:    master,
					SentinelAddrs: splitAddrs(addrs),
				})
				return session.NewStore(rdb, uniquePrefix()), pingOrSkip(t, rdb)
			},
		})
	}

	return out
}

func newMiniredis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb
}

func pingOrSkip(t *testing.T, rdb redis.UniversalClient) redis.UniversalClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("cannot reach redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// uniquePrefix keeps runs against a shared Redis apart without flushing it.
func uniquePrefix() string {
	return "it" + time.Now().Format("150405.000000000")
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func record(userID, deviceID string, issuedAt time.Time) session.Record {
	return session.Record{
		UserID:    userID,
		DeviceID:  deviceID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(time.Hour),
		IP:        "10.0.0.1",
		Title:     "Firefox/128.0",
	}
}

func testConfig() deviceauth.Config {
	cfg := deviceauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("integration-access-secret-01")
	cfg.JWT.RefreshSecret = []byte("integration-refresh-secret-01")
	cfg.JWT.AccessTTL = 10 * time.Second
	cfg.JWT.RefreshTTL = 20 * time.Second
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

// newEngine builds an engine over store with users alice and bob, whose
// passwords are "pw-" followed by the login.
func newEngine(t *testing.T, store deviceauth.SessionStore, rdb redis.UniversalClient) *deviceauth.Engine {
	t.Helper()

	cfg := testConfig()
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	users := userstore.NewMemory()
	for _, login := range []string{"alice", "bob"} {
		hash, err := hasher.Hash("pw-" + login)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if _, err := users.Create(context.Background(), login, login+"@example.com", hash); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	engine, err := deviceauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSessionStore(store).
		WithUserProvider(users).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}
