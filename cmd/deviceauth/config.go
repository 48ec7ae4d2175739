package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/MrEthical07/deviceauth"
)

// envPrefix selects the environment overrides. Nesting uses a double
// underscore so that keys keep their own underscores:
// DEVICEAUTH_JWT__ACCESS_TTL=10m sets jwt.access_ttl.
const envPrefix = "DEVICEAUTH_"

// ServerConfig is the root configuration of the deviceauth server.
type ServerConfig struct {
	HTTP      HTTPSection      `koanf:"http"`
	Redis     RedisSection     `koanf:"redis"`
	Session   SessionSection   `koanf:"session"`
	Postgres  PostgresSection  `koanf:"postgres"`
	JWT       JWTSection       `koanf:"jwt"`
	Password  PasswordSection  `koanf:"password"`
	RateLimit RateLimitSection `koanf:"rate_limit"`
	Audit     AuditSection     `koanf:"audit"`
	Metrics   MetricsSection   `koanf:"metrics"`
	Log       LogSection       `koanf:"log"`

	// Users seeds the in-memory user store when no Postgres DSN is set.
	Users []SeedUser `koanf:"users"`
}

type HTTPSection struct {
	Addr            string        `koanf:"addr"`
	TrustProxy      bool          `koanf:"trust_proxy"`
	InsecureCookie  bool          `koanf:"insecure_cookie"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// RedisSection configures the Redis client. An empty Addr starts an embedded
// miniredis, which is only suitable for development.
type RedisSection struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// SessionSection picks the session backend: "redis" or "badger".
type SessionSection struct {
	Backend        string `koanf:"backend"`
	BadgerDir      string `koanf:"badger_dir"`
	BadgerInMemory bool   `koanf:"badger_in_memory"`
	TitleMaxLength int    `koanf:"title_max_length"`
}

type PostgresSection struct {
	DSN         string `koanf:"dsn"`
	Table       string `koanf:"table"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type JWTSection struct {
	AccessSecret  string        `koanf:"access_secret"`
	RefreshSecret string        `koanf:"refresh_secret"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
	Issuer        string        `koanf:"issuer"`
	Audience      string        `koanf:"audience"`
	Leeway        time.Duration `koanf:"leeway"`
}

type PasswordSection struct {
	MemoryKiB      uint32 `koanf:"memory_kib"`
	Time           uint32 `koanf:"time"`
	Parallelism    uint8  `koanf:"parallelism"`
	BcryptCost     int    `koanf:"bcrypt_cost"`
	UpgradeOnLogin bool   `koanf:"upgrade_on_login"`
}

type RateLimitSection struct {
	LoginThrottle      bool          `koanf:"login_throttle"`
	IPThrottle         bool          `koanf:"ip_throttle"`
	MaxLoginAttempts   int           `koanf:"max_login_attempts"`
	LoginWindow        time.Duration `koanf:"login_window"`
	RefreshThrottle    bool          `koanf:"refresh_throttle"`
	MaxRefreshAttempts int           `koanf:"max_refresh_attempts"`
	RefreshWindow      time.Duration `koanf:"refresh_window"`
}

type AuditSection struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	DropIfFull bool `koanf:"drop_if_full"`
}

// MetricsSection controls the in-process counters and their exporters.
// OTLPEndpoint, when set, pushes the same counters over OTLP/gRPC.
type MetricsSection struct {
	Enabled           bool          `koanf:"enabled"`
	LatencyHistograms bool          `koanf:"latency_histograms"`
	OTLPEndpoint      string        `koanf:"otlp_endpoint"`
	OTLPInsecure      bool          `koanf:"otlp_insecure"`
	OTLPInterval      time.Duration `koanf:"otlp_interval"`
}

type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SeedUser is one in-memory account. PasswordHash wins over Password when
// both are set.
type SeedUser struct {
	Login        string `koanf:"login"`
	Email        string `koanf:"email"`
	Password     string `koanf:"password"`
	PasswordHash string `koanf:"password_hash"`
}

// DefaultServerConfig mirrors deviceauth.DefaultConfig and leaves secrets
// empty.
func DefaultServerConfig() *ServerConfig {
	eng := deviceauth.DefaultConfig()
	return &ServerConfig{
		HTTP: HTTPSection{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisSection{
			Prefix: eng.Session.RedisPrefix,
		},
		Session: SessionSection{
			Backend:        "redis",
			TitleMaxLength: eng.Session.TitleMaxLength,
		},
		Postgres: PostgresSection{
			Table:       "users",
			AutoMigrate: true,
		},
		JWT: JWTSection{
			AccessTTL:  eng.JWT.AccessTTL,
			RefreshTTL: eng.JWT.RefreshTTL,
			Issuer:     eng.JWT.Issuer,
		},
		Password: PasswordSection{
			MemoryKiB:      eng.Password.Memory,
			Time:           eng.Password.Time,
			Parallelism:    eng.Password.Parallelism,
			BcryptCost:     eng.Password.BcryptCost,
			UpgradeOnLogin: eng.Password.UpgradeOnLogin,
		},
		RateLimit: RateLimitSection{
			LoginThrottle:      eng.RateLimit.EnableLoginThrottle,
			IPThrottle:         eng.RateLimit.EnableIPThrottle,
			MaxLoginAttempts:   eng.RateLimit.MaxLoginAttempts,
			LoginWindow:        eng.RateLimit.LoginWindow,
			RefreshThrottle:    eng.RateLimit.EnableRefreshThrottle,
			MaxRefreshAttempts: eng.RateLimit.MaxRefreshAttempts,
			RefreshWindow:      eng.RateLimit.RefreshWindow,
		},
		Audit: AuditSection{
			Enabled:    eng.Audit.Enabled,
			BufferSize: eng.Audit.BufferSize,
			DropIfFull: eng.Audit.DropIfFull,
		},
		Metrics: MetricsSection{
			Enabled:           eng.Metrics.Enabled,
			LatencyHistograms: eng.Metrics.EnableLatencyHistograms,
			OTLPInterval:      10 * time.Second,
		},
		Log: LogSection{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadConfig applies, in order: defaults, the YAML file (if any), then
// DEVICEAUTH_ environment variables. It does not verify the result since
// the offline commands need only part of it.
func loadConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// Verify checks the server-level settings and then the derived engine
// configuration.
func (c *ServerConfig) Verify() error {
	switch c.Session.Backend {
	case "redis":
	case "badger":
		if c.Session.BadgerDir == "" && !c.Session.BadgerInMemory {
			return errors.New("session.badger_dir is required for the badger backend")
		}
	default:
		return fmt.Errorf("session.backend must be redis or badger, got %q", c.Session.Backend)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("http.shutdown_timeout must be > 0")
	}
	if c.Metrics.OTLPEndpoint != "" && c.Metrics.OTLPInterval <= 0 {
		return errors.New("metrics.otlp_interval must be > 0")
	}
	for i, u := range c.Users {
		if u.Login == "" || (u.Password == "" && u.PasswordHash == "") {
			return fmt.Errorf("users[%d]: login and password are required", i)
		}
	}

	eng := c.EngineConfig()
	return eng.Validate()
}

// EngineConfig translates the server configuration into deviceauth.Config.
func (c *ServerConfig) EngineConfig() deviceauth.Config {
	cfg := deviceauth.DefaultConfig()

	cfg.JWT.AccessSecret = []byte(c.JWT.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(c.JWT.RefreshSecret)
	cfg.JWT.AccessTTL = c.JWT.AccessTTL
	cfg.JWT.RefreshTTL = c.JWT.RefreshTTL
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience
	cfg.JWT.Leeway = c.JWT.Leeway

	cfg.Session.RedisPrefix = c.Redis.Prefix
	cfg.Session.TitleMaxLength = c.Session.TitleMaxLength

	cfg.Password.Memory = c.Password.MemoryKiB
	cfg.Password.Time = c.Password.Time
	cfg.Password.Parallelism = c.Password.Parallelism
	cfg.Password.BcryptCost = c.Password.BcryptCost
	cfg.Password.UpgradeOnLogin = c.Password.UpgradeOnLogin

	cfg.RateLimit = deviceauth.RateLimitConfig{
		EnableLoginThrottle:   c.RateLimit.LoginThrottle,
		EnableIPThrottle:      c.RateLimit.IPThrottle,
		MaxLoginAttempts:      c.RateLimit.MaxLoginAttempts,
		LoginWindow:           c.RateLimit.LoginWindow,
		EnableRefreshThrottle: c.RateLimit.RefreshThrottle,
		MaxRefreshAttempts:    c.RateLimit.MaxRefreshAttempts,
		RefreshWindow:         c.RateLimit.RefreshWindow,
	}
	cfg.Audit = deviceauth.AuditConfig{
		Enabled:    c.Audit.Enabled,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
	cfg.Metrics = deviceauth.MetricsConfig{
		Enabled:                 c.Metrics.Enabled,
		EnableLatencyHistograms: c.Metrics.LatencyHistograms,
	}
	return cfg
}
