package deviceauth

import (
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/deviceauth/internal/rate"
	"github.com/MrEthical07/deviceauth/jwt"
	"github.com/MrEthical07/deviceauth/password"
	"github.com/MrEthical07/deviceauth/session"
)

// dummyPassword is hashed once per engine so that logins for unknown users
// spend the same verification cost as real mismatches.
const dummyPassword = "deviceauth-timing-equalizer"

// Builder assembles an [Engine]. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  SessionStore

	userProvider UserProvider
	hasher       PasswordHasher
	clock        Clock
	auditSink    AuditSink
	newDeviceID  func() string

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client used for the default session store and
// for rate limit counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore overrides the session backend. Redis is still used for
// rate limiting when [Builder.WithRedis] is also called.
func (b *Builder) WithSessionStore(store SessionStore) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithPasswordHasher overrides the default Argon2id/bcrypt hasher built
// from Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithClock injects the time source shared by the engine, the credential
// issuer and the default Redis session store.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithDeviceIDGenerator overrides uuid.NewString for new device ids.
func (b *Builder) WithDeviceIDGenerator(gen func() string) *Builder {
	b.newDeviceID = gen
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready [Engine]. A Builder
// can be built only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}

	// -------- SESSION STORE --------
	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("session store or redis client required")
		}
		store = session.NewStore(b.redis, cfg.Session.RedisPrefix, session.WithClock(clock.Now))
	}

	// -------- CREDENTIALS --------
	issuer, err := jwt.NewIssuer(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, err
	}

	// -------- PASSWORDS --------
	hasher := b.hasher
	if hasher == nil {
		auto, err := password.NewAuto(cfg.Password.argon2(), cfg.Password.BcryptCost)
		if err != nil {
			return nil, err
		}
		hasher = auto
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		clock:        clock,
		issuer:       issuer,
		sessionStore: store,
		userProvider: b.userProvider,
		hasher:       hasher,
		dummyHash:    dummyHash,
		newDeviceID:  b.newDeviceID,
	}
	if engine.newDeviceID == nil {
		engine.newDeviceID = uuid.NewString
	}
	if updater, ok := b.userProvider.(PasswordHashUpdater); ok && cfg.Password.UpgradeOnLogin {
		engine.hashUpdater = updater
	}

	// -------- RATE LIMITS --------
	if b.redis != nil && (cfg.RateLimit.EnableLoginThrottle || cfg.RateLimit.EnableRefreshThrottle) {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:                cfg.Session.RedisPrefix,
			EnableIPThrottle:      cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts:      cfg.RateLimit.MaxLoginAttempts,
			LoginWindow:           cfg.RateLimit.LoginWindow,
			EnableRefreshThrottle: cfg.RateLimit.EnableRefreshThrottle,
			MaxRefreshAttempts:    cfg.RateLimit.MaxRefreshAttempts,
			RefreshWindow:         cfg.RateLimit.RefreshWindow,
		})
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.initFlows()

	b.built = true

	return engine, nil
}
