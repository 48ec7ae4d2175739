package deviceauth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/deviceauth/session"
)

// UserRecord is the account data the engine needs from the user database.
type UserRecord struct {
	UserID       string
	Login        string
	Email        string
	PasswordHash string
}

// UserProvider is the read side of the user database. Both methods return
// [ErrUserNotFound] (possibly wrapped) when the user does not exist.
type UserProvider interface {
	GetUserByLogin(ctx context.Context, login string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
}

// PasswordHashUpdater is optionally implemented by a [UserProvider]. When
// present and Password.UpgradeOnLogin is set, hashes in a legacy format are
// replaced after the next successful login.
type PasswordHashUpdater interface {
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

// PasswordHasher hashes and verifies passwords. password.Auto satisfies it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// SessionStore is the persistence contract for device sessions. Rotate and
// Delete must be atomic: a failed call leaves the stored row unchanged.
type SessionStore interface {
	Create(ctx context.Context, rec session.Record) error
	Get(ctx context.Context, deviceID string) (session.Record, error)
	Rotate(ctx context.Context, expectedIssuedAt time.Time, next session.Record) error
	Delete(ctx context.Context, userID, deviceID string, issuedAt time.Time) error
	DeleteAllExcept(ctx context.Context, userID, keepDeviceID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]session.Record, error)
}

// Pinger is implemented by session stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Clock is the engine's time source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a plain function to [Clock].
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// Client describes the caller of Login or Refresh.
type Client struct {
	IP        string
	UserAgent string
}

// Title derives the session title from the client identification string:
// everything before its first space, capped at maxLen bytes when maxLen > 0.
// The string is not trimmed first, so a leading space yields an empty title.
func (c Client) Title(maxLen int) string {
	title := c.UserAgent
	if i := strings.IndexByte(title, ' '); i >= 0 {
		title = title[:i]
	}
	if maxLen > 0 && len(title) > maxLen {
		title = title[:maxLen]
	}
	return title
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	DeviceID     string
	IssuedAt     time.Time
}

// SessionView is the client-facing projection of one device session.
type SessionView struct {
	IP             string `json:"ip"`
	Title          string `json:"title"`
	LastActiveDate string `json:"lastActiveDate"`
	DeviceID       string `json:"deviceId"`
}

const lastActiveLayout = "2006-01-02T15:04:05.000Z07:00"

func newSessionView(rec session.Record) SessionView {
	return SessionView{
		IP:             rec.IP,
		Title:          rec.Title,
		LastActiveDate: rec.IssuedAt.UTC().Format(lastActiveLayout),
		DeviceID:       rec.DeviceID,
	}
}

// AccessIdentity is the verified content of an access credential.
type AccessIdentity struct {
	UserID string `json:"userId"`
	Login  string `json:"login"`
	Email  string `json:"email"`
}

// RevokeOutcome is the result of [Engine.RevokeDevice].
type RevokeOutcome uint8

const (
	// RevokeFailed means a storage fault prevented a decision. It is the
	// zero value so an unset outcome never reads as success.
	RevokeFailed RevokeOutcome = iota
	// RevokeSuccess means the target session was deleted.
	RevokeSuccess
	// RevokeUnauthorized means the caller's credential was not accepted.
	RevokeUnauthorized
	// RevokeNotFound means no session exists for the target device.
	RevokeNotFound
	// RevokeForbidden means the target session belongs to another user.
	RevokeForbidden
)

func (o RevokeOutcome) String() string {
	switch o {
	case RevokeSuccess:
		return "success"
	case RevokeUnauthorized:
		return "unauthorized"
	case RevokeNotFound:
		return "not_found"
	case RevokeForbidden:
		return "forbidden"
	default:
		return "failed"
	}
}

// HTTPStatus maps the outcome to the status code an HTTP adapter returns.
func (o RevokeOutcome) HTTPStatus() int {
	switch o {
	case RevokeSuccess:
		return http.StatusNoContent
	case RevokeUnauthorized:
		return http.StatusUnauthorized
	case RevokeNotFound:
		return http.StatusNotFound
	case RevokeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

// Err returns the sentinel error matching the outcome, or nil on success.
func (o RevokeOutcome) Err() error {
	switch o {
	case RevokeSuccess:
		return nil
	case RevokeUnauthorized:
		return ErrUnauthorized
	case RevokeNotFound:
		return ErrSessionNotFound
	case RevokeForbidden:
		return ErrForbidden
	default:
		return ErrStoreUnavailable
	}
}
