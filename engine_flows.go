package deviceauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/deviceauth/internal/flows"
	"github.com/MrEthical07/deviceauth/internal/rate"
	"github.com/MrEthical07/deviceauth/jwt"
)

// initFlows wires the flow dependency sets once. Every field captured here is
// immutable after Build.
func (e *Engine) initFlows() {
	authenticate := flows.AuthenticateDeps{
		VerifyRefresh: e.issuer.VerifyRefresh,
		Sessions:      e.sessionStore,
	}

	login := flows.LoginDeps{
		Now:            e.clock.Now,
		GetUserByLogin: e.loginUserByLogin,
		UserNotFound:   ErrUserNotFound,
		VerifyPassword: e.hasher.Verify,
		DummyHash:      e.dummyHash,
		NewDeviceID:    e.newDeviceID,
		IssueAccess:    e.issueAccess,
		IssueRefresh:   e.issuer.IssueRefresh,
		RefreshTTL:     e.issuer.RefreshTTL(),
		Sessions:       e.sessionStore,
	}
	if e.hashUpdater != nil {
		login.PasswordNeedsUpgrade = e.hasher.NeedsUpgrade
		login.HashPassword = e.hasher.Hash
		login.UpdatePasswordHash = e.hashUpdater.UpdatePasswordHash
	}

	refresh := flows.RefreshDeps{
		Now:           e.clock.Now,
		VerifyRefresh: e.issuer.VerifyRefresh,
		GetUserByID:   e.loginUserByID,
		UserNotFound:  ErrUserNotFound,
		IssueAccess:   e.issueAccess,
		IssueRefresh:  e.issuer.IssueRefresh,
		RefreshTTL:    e.issuer.RefreshTTL(),
		SessionStore:  e.sessionStore,
	}

	if e.rateLimiter != nil {
		if e.config.RateLimit.EnableLoginThrottle {
			login.CheckLoginRate = e.rateLimiter.CheckLogin
			login.IncrementLoginRate = e.rateLimiter.IncrementLogin
			login.ResetLoginRate = e.rateLimiter.ResetLogin
			login.RateLimited = rate.ErrRateLimited
		}
		if e.config.RateLimit.EnableRefreshThrottle {
			refresh.CheckRefresh = e.rateLimiter.CheckRefresh
			refresh.RateLimited = rate.ErrRateLimited
		}
	}

	e.flows = flows.New(flows.Deps{
		Authenticate: authenticate,
		Login:        login,
		Refresh:      refresh,
		Sessions: flows.SessionsDeps{
			Authenticate: authenticate,
			Store:        e.sessionStore,
		},
		Validate: flows.ValidateDeps{
			VerifyAccess: e.issuer.VerifyAccess,
		},
	})
}

func toLoginUser(u UserRecord) flows.LoginUser {
	return flows.LoginUser{
		UserID:       u.UserID,
		Login:        u.Login,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
	}
}

func (e *Engine) loginUserByLogin(ctx context.Context, login string) (flows.LoginUser, error) {
	u, err := e.userProvider.GetUserByLogin(ctx, login)
	if err != nil {
		return flows.LoginUser{}, err
	}
	return toLoginUser(u), nil
}

func (e *Engine) loginUserByID(ctx context.Context, userID string) (flows.LoginUser, error) {
	u, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return flows.LoginUser{}, err
	}
	return toLoginUser(u), nil
}

func (e *Engine) issueAccess(u flows.LoginUser) (string, error) {
	return e.issuer.IssueAccess(jwt.AccessSubject{
		UserID: u.UserID,
		Login:  u.Login,
		Email:  u.Email,
	})
}

// storeFailure wraps err so callers can match [ErrStoreUnavailable] while
// the cause stays in the message.
func storeFailure(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}
