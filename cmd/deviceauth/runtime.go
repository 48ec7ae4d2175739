package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/deviceauth"
	"github.com/MrEthical07/deviceauth/httpapi"
	otelexport "github.com/MrEthical07/deviceauth/metrics/export/otel"
	promexport "github.com/MrEthical07/deviceauth/metrics/export/prometheus"
	"github.com/MrEthical07/deviceauth/password"
	"github.com/MrEthical07/deviceauth/session/badgerstore"
	"github.com/MrEthical07/deviceauth/userstore"
)

// runtime owns everything serve starts. Close releases it in reverse order
// of construction.
type runtime struct {
	engine  *deviceauth.Engine
	handler http.Handler
	closers []func(context.Context) error
	log     *slog.Logger
}

func (rt *runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// buildRuntime wires the engine and HTTP handler from cfg. On error any
// partially started resources are released before returning.
func buildRuntime(ctx context.Context, cfg *ServerConfig, log *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{log: log}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	rdb, err := rt.openRedis(cfg.Redis)
	if err != nil {
		return nil, err
	}

	users, err := rt.openUsers(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b := deviceauth.New().
		WithConfig(cfg.EngineConfig()).
		WithRedis(rdb).
		WithUserProvider(users)

	if cfg.Session.Backend == "badger" {
		store, err := badgerstore.Open(badgerstore.Config{
			Dir:      cfg.Session.BadgerDir,
			InMemory: cfg.Session.BadgerInMemory,
			Logger:   log.With("component", "badger"),
		})
		if err != nil {
			return nil, err
		}
		rt.onClose(func(context.Context) error { return store.Close() })
		b = b.WithSessionStore(store)
	}

	if cfg.Audit.Enabled {
		b = b.WithAuditSink(deviceauth.NewSlogSink(log))
	}

	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine
	rt.onClose(func(context.Context) error {
		engine.Close()
		return nil
	})

	opts := httpapi.Options{
		InsecureCookie: cfg.HTTP.InsecureCookie,
		TrustProxy:     cfg.HTTP.TrustProxy,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         log.With("component", "http"),
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = promexport.Handler(engine)

		if cfg.Metrics.OTLPEndpoint != "" {
			mp, err := newMeterProvider(ctx, cfg.Metrics)
			if err != nil {
				return nil, fmt.Errorf("otlp metrics: %w", err)
			}
			rt.onClose(mp.Shutdown)
			exp, err := otelexport.New(mp.Meter("github.com/MrEthical07/deviceauth"), engine)
			if err != nil {
				return nil, err
			}
			rt.onClose(func(context.Context) error { return exp.Close() })
		}
	}
	rt.handler = httpapi.NewRouter(engine, opts)

	return rt, nil
}

func (rt *runtime) openRedis(cfg RedisSection) (redis.UniversalClient, error) {
	addr := cfg.Addr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		rt.onClose(func(context.Context) error {
			mr.Close()
			return nil
		})
		addr = mr.Addr()
		rt.log.Warn("redis.addr not set, using embedded miniredis", "addr", addr)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	rt.onClose(func(context.Context) error { return rdb.Close() })
	return rdb, nil
}

func (rt *runtime) openUsers(ctx context.Context, cfg *ServerConfig) (deviceauth.UserProvider, error) {
	if cfg.Postgres.DSN != "" {
		pg, err := openPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		rt.onClose(func(context.Context) error {
			pg.pool.Close()
			return nil
		})
		if len(cfg.Users) > 0 {
			rt.log.Warn("users list ignored when postgres.dsn is set", "count", len(cfg.Users))
		}
		return pg.store, nil
	}

	hasher, err := newHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	mem := userstore.NewMemory()
	for _, u := range cfg.Users {
		hash := u.PasswordHash
		if hash == "" {
			if hash, err = hasher.Hash(u.Password); err != nil {
				return nil, fmt.Errorf("hash password for %q: %w", u.Login, err)
			}
		}
		if _, err := mem.Create(ctx, u.Login, u.Email, hash); err != nil {
			return nil, fmt.Errorf("seed user %q: %w", u.Login, err)
		}
	}
	rt.log.Info("using in-memory users", "count", mem.Len())
	return mem, nil
}

type postgresUsers struct {
	pool  *pgxpool.Pool
	store *userstore.Postgres
}

func openPostgres(ctx context.Context, cfg PostgresSection) (*postgresUsers, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := userstore.NewPostgres(pool, userstore.WithTable(cfg.Table))
	if cfg.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &postgresUsers{pool: pool, store: store}, nil
}

func newHasher(cfg PasswordSection) (*password.Auto, error) {
	pc := password.DefaultConfig()
	pc.Memory = cfg.MemoryKiB
	pc.Time = cfg.Time
	pc.Parallelism = cfg.Parallelism
	return password.NewAuto(pc, cfg.BcryptCost)
}

// logSecurityReport writes the effective security posture once at startup.
func logSecurityReport(log *slog.Logger, r deviceauth.SecurityReport) {
	log.Info("security posture",
		"signing_algorithm", r.SigningAlgorithm,
		"access_ttl", r.AccessTTL.String(),
		"refresh_ttl", r.RefreshTTL.String(),
		"leeway", r.Leeway.String(),
		"separate_secrets", r.SeparateSecrets,
		"argon2_memory_kib", r.Argon2.Memory,
		"argon2_time", r.Argon2.Time,
		"argon2_parallelism", r.Argon2.Parallelism,
		"password_upgrade_on_login", r.PasswordUpgradeOnLogin,
		"login_throttle", r.LoginThrottleActive,
		"ip_throttle", r.IPThrottleActive,
		"refresh_throttle", r.RefreshThrottleActive,
		"audit", r.AuditEnabled,
		"metrics", r.MetricsEnabled,
	)
}
