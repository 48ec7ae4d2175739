package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/deviceauth/session"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureUserLookup
	LoginFailureDeviceID
	LoginFailureIssue
	LoginFailureStore
)

// LoginUser is a flow-local user model.
type LoginUser struct {
	UserID       string
	Login        string
	Email        string
	PasswordHash string
}

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	UserID       string
	DeviceID     string
	IssuedAt     time.Time
	AccessToken  string
	RefreshToken string
}

type SessionCreator interface {
	Create(ctx context.Context, rec session.Record) error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Now func() time.Time

	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string) error
	RateLimited        error

	GetUserByLogin func(context.Context, string) (LoginUser, error)
	UserNotFound   error

	VerifyPassword       func(string, string) (bool, error)
	DummyHash            string
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(string) (string, error)
	UpdatePasswordHash   func(context.Context, string, string) error

	NewDeviceID  func() string
	IssueAccess  func(LoginUser) (string, error)
	IssueRefresh func(userID, deviceID string, issuedAt time.Time) (string, error)
	RefreshTTL   time.Duration
	Sessions     SessionCreator

	Warn func(string, ...any)
}

// RunLogin checks credentials, creates a device session and issues a pair.
// The session is persisted before any credential leaves this function.
func RunLogin(ctx context.Context, login, password string, client Client, deps LoginDeps) LoginResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, login, client.IP); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err}
			}
			return LoginResult{Failure: LoginFailureStore, Err: err}
		}
	}

	user, err := deps.GetUserByLogin(ctx, login)
	if err != nil {
		if deps.UserNotFound == nil || !errors.Is(err, deps.UserNotFound) {
			return LoginResult{Failure: LoginFailureUserLookup, Err: err}
		}
		// Burn the same hashing cost as a real mismatch.
		if deps.DummyHash != "" {
			_, _ = deps.VerifyPassword(password, deps.DummyHash)
		}
		return failedLogin(ctx, login, client, deps, err)
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return failedLogin(ctx, login, client, deps, err)
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, login); err != nil {
			deps.Warn("deviceauth: login rate reset failed", "error", err)
		}
	}
	upgradePasswordHash(ctx, user, password, deps)

	deviceID := deps.NewDeviceID()
	issuedAt := deps.Now().Truncate(time.Second)

	access, err := deps.IssueAccess(user)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.UserID}
	}
	refresh, err := deps.IssueRefresh(user.UserID, deviceID, issuedAt)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.UserID}
	}

	rec := session.Record{
		UserID:    user.UserID,
		DeviceID:  deviceID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(deps.RefreshTTL),
		IP:        client.IP,
		Title:     client.Title,
	}
	if err := deps.Sessions.Create(ctx, rec); err != nil {
		return LoginResult{
			Failure:  LoginFailureStore,
			Err:      err,
			UserID:   user.UserID,
			DeviceID: deviceID,
		}
	}

	return LoginResult{
		Failure:      LoginFailureNone,
		UserID:       user.UserID,
		DeviceID:     deviceID,
		IssuedAt:     issuedAt,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}

func failedLogin(ctx context.Context, login string, client Client, deps LoginDeps, cause error) LoginResult {
	if deps.IncrementLoginRate != nil {
		if err := deps.IncrementLoginRate(ctx, login, client.IP); err != nil {
			deps.Warn("deviceauth: login rate increment failed", "error", err)
		}
	}
	return LoginResult{Failure: LoginFailureInvalidCredentials, Err: cause}
}

func upgradePasswordHash(ctx context.Context, user LoginUser, password string, deps LoginDeps) {
	if deps.PasswordNeedsUpgrade == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	needs, err := deps.PasswordNeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := deps.HashPassword(password)
	if err != nil {
		deps.Warn("deviceauth: password rehash failed", "error", err)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		deps.Warn("deviceauth: password hash update failed", "error", err)
	}
}
