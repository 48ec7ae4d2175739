package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/deviceauth/jwt"
	"github.com/MrEthical07/deviceauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalidToken
	RefreshFailureRateLimited
	RefreshFailureUserGone
	RefreshFailureUserLookup
	RefreshFailureIssue
	RefreshFailureReuse
	RefreshFailureSessionNotFound
	RefreshFailureOwnerMismatch
	RefreshFailureStore
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	UserID       string
	DeviceID     string
	IssuedAt     time.Time
	AccessToken  string
	RefreshToken string
}

type RefreshSessionStore interface {
	SessionReader
	Rotate(ctx context.Context, expectedIssuedAt time.Time, next session.Record) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now           func() time.Time
	VerifyRefresh func(string) (*jwt.RefreshClaims, bool)
	CheckRefresh  func(context.Context, string) error
	RateLimited   error

	GetUserByID  func(context.Context, string) (LoginUser, error)
	UserNotFound error

	IssueAccess  func(LoginUser) (string, error)
	IssueRefresh func(userID, deviceID string, issuedAt time.Time) (string, error)
	RefreshTTL   time.Duration
	SessionStore RefreshSessionStore
}

// NextIssuedAt returns the issuance time for a rotation. It is never earlier
// than now and always at least one second after prev, so two rotations in
// the same wall-clock second still produce distinct credentials.
func NextIssuedAt(now, prev time.Time) time.Time {
	now = now.Truncate(time.Second)
	floor := prev.Truncate(time.Second).Add(time.Second)
	if now.Before(floor) {
		return floor
	}
	return now
}

// RunRefresh executes strict rotation: authenticate, mint, compare-and-swap.
// Authentication rejects stale credentials before any user lookup; the swap
// then settles races between callers that all authenticated against the
// same row. The pair is returned only when the swap succeeded, so at most
// one caller per presented credential ever receives a successor.
func RunRefresh(ctx context.Context, refreshToken string, client Client, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	auth := RunAuthenticate(ctx, refreshToken, AuthenticateDeps{
		VerifyRefresh: deps.VerifyRefresh,
		Sessions:      deps.SessionStore,
	})
	if auth.Failure != AuthFailureNone {
		return refreshAuthFailure(auth)
	}
	id := auth.Identity
	userID, deviceID := id.UserID, id.DeviceID

	if deps.CheckRefresh != nil {
		if err := deps.CheckRefresh(ctx, deviceID); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, UserID: userID, DeviceID: deviceID}
			}
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID, DeviceID: deviceID}
		}
	}

	user, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		kind := RefreshFailureUserLookup
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			kind = RefreshFailureUserGone
		}
		return RefreshResult{Failure: kind, Err: err, UserID: userID, DeviceID: deviceID}
	}

	prev := id.Session.IssuedAt
	issuedAt := NextIssuedAt(deps.Now(), prev)

	access, err := deps.IssueAccess(user)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: userID, DeviceID: deviceID}
	}
	refresh, err := deps.IssueRefresh(userID, deviceID, issuedAt)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: userID, DeviceID: deviceID}
	}

	next := session.Record{
		UserID:    userID,
		DeviceID:  deviceID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(deps.RefreshTTL),
		IP:        client.IP,
		Title:     client.Title,
	}
	if err := deps.SessionStore.Rotate(ctx, prev, next); err != nil {
		kind := RefreshFailureStore
		switch {
		case errors.Is(err, session.ErrIssuedAtMismatch):
			kind = RefreshFailureReuse
		case errors.Is(err, session.ErrSessionNotFound):
			kind = RefreshFailureSessionNotFound
		case errors.Is(err, session.ErrOwnerMismatch):
			kind = RefreshFailureOwnerMismatch
		}
		return RefreshResult{Failure: kind, Err: err, UserID: userID, DeviceID: deviceID}
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		UserID:       userID,
		DeviceID:     deviceID,
		IssuedAt:     issuedAt,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}

func refreshAuthFailure(auth AuthenticateResult) RefreshResult {
	kind := RefreshFailureInvalidToken
	switch auth.Failure {
	case AuthFailureSessionNotFound:
		kind = RefreshFailureSessionNotFound
	case AuthFailureOwnerMismatch:
		kind = RefreshFailureOwnerMismatch
	case AuthFailureStale:
		kind = RefreshFailureReuse
	case AuthFailureStore:
		kind = RefreshFailureStore
	}
	res := RefreshResult{Failure: kind, Err: auth.Err}
	if auth.Claims != nil {
		res.UserID = auth.Claims.UserID
		res.DeviceID = auth.Claims.DeviceID
	}
	return res
}
