package deviceauth

import "time"

// SecurityReport summarizes the effective security posture of an engine.
// It carries no secrets and is safe to log at startup.
type SecurityReport struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	Leeway                 time.Duration
	SeparateSecrets        bool
	Argon2                 PasswordConfigReport
	PasswordUpgradeOnLogin bool
	LoginThrottleActive    bool
	IPThrottleActive       bool
	RefreshThrottleActive  bool
	AuditEnabled           bool
	MetricsEnabled         bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	limiter := e.rateLimiter != nil
	return SecurityReport{
		SigningAlgorithm: "HS256",
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		Leeway:           e.config.JWT.Leeway,
		// Validate rejects equal secrets; reported for completeness.
		SeparateSecrets: true,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		PasswordUpgradeOnLogin: e.hashUpdater != nil,
		LoginThrottleActive:    limiter && e.config.RateLimit.EnableLoginThrottle,
		IPThrottleActive:       limiter && e.config.RateLimit.EnableLoginThrottle && e.config.RateLimit.EnableIPThrottle,
		RefreshThrottleActive:  limiter && e.config.RateLimit.EnableRefreshThrottle,
		AuditEnabled:           e.audit != nil,
		MetricsEnabled:         e.metrics.Enabled(),
	}
}
