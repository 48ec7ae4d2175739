package jwt

import (
	"bytes"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind selects which secret and payload shape a credential uses.
type Kind uint8

const (
	// KindAccess is the short-lived credential presented on ordinary API calls.
	KindAccess Kind = iota + 1
	// KindRefresh is the rotating credential exchanged for a new pair.
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

const maxLeeway = 2 * time.Minute

// Config holds signing secrets and lifetimes. AccessSecret and RefreshSecret
// must differ.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	Now           func() time.Time
}

// Issuer mints and verifies credentials. It holds no mutable state and is
// safe for concurrent use.
type Issuer struct {
	config Config
	method jwt.SigningMethod
}

// AccessSubject is the user data embedded in an access credential.
type AccessSubject struct {
	UserID string
	Login  string
	Email  string
}

// AccessClaims is the decoded payload of an access credential.
type AccessClaims struct {
	UserID string `json:"userId"`
	Login  string `json:"login"`
	Email  string `json:"email"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the decoded payload of a refresh credential. IssuedAt in
// the embedded registered claims is the rotation marker compared against the
// session store.
type RefreshClaims struct {
	UserID   string `json:"userId"`
	DeviceID string `json:"deviceId"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// Payload is the kind-independent view returned by [Issuer.Verify].
// Fields that do not apply to the credential kind are empty.
type Payload struct {
	Kind      Kind
	UserID    string
	Login     string
	Email     string
	DeviceID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewIssuer validates cfg and returns an [Issuer].
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("access secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh secret is required")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Issuer{config: cfg, method: jwt.SigningMethodHS256}, nil
}

// AccessTTL reports the configured access credential lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.config.AccessTTL }

// RefreshTTL reports the configured refresh credential lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.config.RefreshTTL }

// IssueAccess mints an access credential for subject.
func (i *Issuer) IssueAccess(subject AccessSubject) (string, error) {
	now := i.config.Now()
	claims := AccessClaims{
		UserID:           subject.UserID,
		Login:            subject.Login,
		Email:            subject.Email,
		Type:             KindAccess.String(),
		RegisteredClaims: i.registered(now, now.Add(i.config.AccessTTL)),
	}
	return jwt.NewWithClaims(i.method, claims).SignedString(i.config.AccessSecret)
}

// IssueRefresh mints a refresh credential for the device lineage. issuedAt
// is truncated to whole seconds and the credential expires RefreshTTL later.
func (i *Issuer) IssueRefresh(userID, deviceID string, issuedAt time.Time) (string, error) {
	issuedAt = issuedAt.Truncate(time.Second)
	claims := RefreshClaims{
		UserID:           userID,
		DeviceID:         deviceID,
		Type:             KindRefresh.String(),
		RegisteredClaims: i.registered(issuedAt, issuedAt.Add(i.config.RefreshTTL)),
	}
	return jwt.NewWithClaims(i.method, claims).SignedString(i.config.RefreshSecret)
}

func (i *Issuer) registered(issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Issuer:    i.config.Issuer,
	}
	if i.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{i.config.Audience}
	}
	return rc
}

// Verify decodes token as a credential of the given kind. ok is false on
// any failure: empty input, malformed structure, bad signature, expiry, or
// a credential of the other kind.
func (i *Issuer) Verify(token string, kind Kind) (Payload, bool) {
	switch kind {
	case KindAccess:
		claims, ok := i.VerifyAccess(token)
		if !ok {
			return Payload{}, false
		}
		return Payload{
			Kind:      KindAccess,
			UserID:    claims.UserID,
			Login:     claims.Login,
			Email:     claims.Email,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		}, true
	case KindRefresh:
		claims, ok := i.VerifyRefresh(token)
		if !ok {
			return Payload{}, false
		}
		return Payload{
			Kind:      KindRefresh,
			UserID:    claims.UserID,
			DeviceID:  claims.DeviceID,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		}, true
	default:
		return Payload{}, false
	}
}

// VerifyAccess decodes an access credential.
func (i *Issuer) VerifyAccess(token string) (*AccessClaims, bool) {
	claims := &AccessClaims{}
	if !i.parse(token, claims, i.config.AccessSecret) {
		return nil, false
	}
	if claims.Type != KindAccess.String() || claims.UserID == "" {
		return nil, false
	}
	return claims, true
}

// VerifyRefresh decodes a refresh credential.
func (i *Issuer) VerifyRefresh(token string) (*RefreshClaims, bool) {
	claims := &RefreshClaims{}
	if !i.parse(token, claims, i.config.RefreshSecret) {
		return nil, false
	}
	if claims.Type != KindRefresh.String() || claims.UserID == "" || claims.DeviceID == "" {
		return nil, false
	}
	if claims.IssuedAt == nil {
		return nil, false
	}
	return claims, true
}

func (i *Issuer) parse(token string, claims jwt.Claims, secret []byte) bool {
	if token == "" {
		return false
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.config.Now),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}
	if i.config.Audience != "" {
		options = append(options, jwt.WithAudience(i.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != i.method.Alg() {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	})
	if err != nil || parsed == nil || !parsed.Valid {
		return false
	}
	return true
}
