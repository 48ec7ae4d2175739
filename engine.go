package deviceauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/deviceauth/internal/flows"
	"github.com/MrEthical07/deviceauth/internal/rate"
	"github.com/MrEthical07/deviceauth/jwt"
	"github.com/MrEthical07/deviceauth/session"
)

// Engine is the session manager. Build one with [New] and share it; all
// methods are safe for concurrent use and hold no per-request state.
type Engine struct {
	config       Config
	clock        Clock
	issuer       *jwt.Issuer
	sessionStore SessionStore
	rateLimiter  *rate.Limiter
	userProvider UserProvider
	hashUpdater  PasswordHashUpdater
	hasher       PasswordHasher
	dummyHash    string
	newDeviceID  func() string
	audit        *auditDispatcher
	metrics      *Metrics
	flows        flows.Service
}

// Close flushes and stops the audit dispatcher. It does not close the
// session store or Redis client; those belong to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditSinkPanics reports how many events the audit sink panicked on. The
// dispatcher recovers and keeps delivering, so this is the only trace.
func (e *Engine) AuditSinkPanics() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.SinkPanics()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// Ping checks the session backend when it supports health checks.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	p, ok := e.sessionStore.(Pinger)
	if !ok {
		return 0, nil
	}
	d, err := p.Ping(ctx)
	if err != nil {
		return d, storeFailure(err)
	}
	return d, nil
}

// AccessTTL and RefreshTTL expose configured lifetimes for transport layers
// (cookie Max-Age, cache headers).
func (e *Engine) AccessTTL() time.Duration  { return e.config.JWT.AccessTTL }
func (e *Engine) RefreshTTL() time.Duration { return e.config.JWT.RefreshTTL }

func withClient(ctx context.Context, client Client) context.Context {
	if client.IP != "" && clientIPFromContext(ctx) == "" {
		ctx = WithClientIP(ctx, client.IP)
	}
	return ctx
}

// Login checks credentials and opens a new device session. Unknown logins
// and wrong passwords both return [ErrAuthFailed]. The session row is
// written before the pair is returned.
func (e *Engine) Login(ctx context.Context, login, password string, client Client) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricLoginLatency, start)

	ctx = withClient(ctx, client)
	res := e.flows.Login(ctx, login, password, flows.Client{
		IP:    client.IP,
		Title: client.Title(e.config.Session.TitleMaxLength),
	})

	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.UserID, res.DeviceID, nil, nil)
		return TokenPair{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			DeviceID:     res.DeviceID,
			IssuedAt:     res.IssuedAt,
		}, nil
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{"login": login}
		})
		e.emitRateLimit(ctx, "login", func() map[string]string {
			return map[string]string{"login": login}
		})
		return TokenPair{}, ErrLoginRateLimited
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrAuthFailed, func() map[string]string {
			return map[string]string{"login": login}
		})
		return TokenPair{}, ErrAuthFailed
	case flows.LoginFailureIssue:
		e.metricInc(MetricLoginFailure)
		err := fmt.Errorf("%w: %v", ErrTokenIssue, res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.UserID, "", err, nil)
		return TokenPair{}, err
	default:
		e.metricInc(MetricLoginFailure)
		e.metricInc(MetricStoreFailure)
		err := storeFailure(res.Err)
		e.emitAudit(ctx, auditEventStoreFailure, false, res.UserID, res.DeviceID, err, func() map[string]string {
			return map[string]string{"op": "login"}
		})
		return TokenPair{}, err
	}
}

// Refresh exchanges a current refresh credential for a new pair and retires
// the presented one. Of several concurrent calls with the same credential,
// exactly one succeeds; the rest get [ErrUnauthorized].
func (e *Engine) Refresh(ctx context.Context, refreshToken string, client Client) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricRefreshLatency, start)

	ctx = withClient(ctx, client)
	res := e.flows.Refresh(ctx, refreshToken, flows.Client{
		IP:    client.IP,
		Title: client.Title(e.config.Session.TitleMaxLength),
	})

	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.DeviceID, nil, nil)
		return TokenPair{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			DeviceID:     res.DeviceID,
			IssuedAt:     res.IssuedAt,
		}, nil
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricUnauthorized)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, res.DeviceID, errRefreshReuse, nil)
		return TokenPair{}, ErrUnauthorized
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, res.UserID, res.DeviceID, ErrRefreshRateLimited, nil)
		e.emitRateLimit(ctx, "refresh", func() map[string]string {
			return map[string]string{"device_id": res.DeviceID}
		})
		return TokenPair{}, ErrRefreshRateLimited
	case flows.RefreshFailureUserGone:
		// The account is gone; its device row can never refresh again.
		e.dropOrphanSession(ctx, res.UserID, res.DeviceID)
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricUnauthorized)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.DeviceID, ErrUserNotFound, nil)
		return TokenPair{}, ErrUnauthorized
	case flows.RefreshFailureInvalidToken,
		flows.RefreshFailureSessionNotFound,
		flows.RefreshFailureOwnerMismatch:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricUnauthorized)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.DeviceID, ErrUnauthorized, func() map[string]string {
			return map[string]string{"reason": refreshReason(res.Failure)}
		})
		return TokenPair{}, ErrUnauthorized
	case flows.RefreshFailureIssue:
		e.metricInc(MetricRefreshFailure)
		err := fmt.Errorf("%w: %v", ErrTokenIssue, res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.DeviceID, err, nil)
		return TokenPair{}, err
	default:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricStoreFailure)
		err := storeFailure(res.Err)
		e.emitAudit(ctx, auditEventStoreFailure, false, res.UserID, res.DeviceID, err, func() map[string]string {
			return map[string]string{"op": "refresh"}
		})
		return TokenPair{}, err
	}
}

// dropOrphanSession removes the row of a device whose account no longer
// exists. A row that is already gone or has moved on is fine; a backend
// fault is recorded but never changes the caller's answer.
func (e *Engine) dropOrphanSession(ctx context.Context, userID, deviceID string) {
	err := e.sessionStore.Delete(ctx, userID, deviceID, time.Time{})
	if err == nil ||
		errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrOwnerMismatch) ||
		errors.Is(err, session.ErrIssuedAtMismatch) {
		return
	}
	e.metricInc(MetricStoreFailure)
	e.emitAudit(ctx, auditEventStoreFailure, false, userID, deviceID, storeFailure(err), func() map[string]string {
		return map[string]string{"op": "refresh_cleanup"}
	})
}

func refreshReason(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureInvalidToken:
		return "invalid_token"
	case flows.RefreshFailureSessionNotFound:
		return "session_not_found"
	case flows.RefreshFailureOwnerMismatch:
		return "owner_mismatch"
	default:
		return "other"
	}
}

// sessionsError maps a session-management flow failure onto the public
// taxonomy and records it.
func (e *Engine) sessionsError(ctx context.Context, op string, res flows.SessionsResult) error {
	switch res.Failure {
	case flows.SessionsFailureNone:
		return nil
	case flows.SessionsFailureStore:
		e.metricInc(MetricStoreFailure)
		err := storeFailure(res.Err)
		e.emitAudit(ctx, auditEventStoreFailure, false, res.UserID, res.DeviceID, err, func() map[string]string {
			return map[string]string{"op": op}
		})
		return err
	default:
		e.metricInc(MetricUnauthorized)
		return ErrUnauthorized
	}
}

// Logout deletes the caller's own session. A second call with the same
// credential returns [ErrUnauthorized] because the row it referred to is gone.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	res := e.flows.Logout(ctx, refreshToken)
	if err := e.sessionsError(ctx, "logout", res); err != nil {
		if res.Failure == flows.SessionsFailureUnauthorized {
			e.emitAudit(ctx, auditEventLogout, false, res.UserID, res.DeviceID, err, nil)
		}
		return err
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogout, true, res.UserID, res.DeviceID, nil, nil)
	return nil
}

// ListSessions returns the caller's own sessions, newest first.
func (e *Engine) ListSessions(ctx context.Context, refreshToken string) ([]SessionView, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res := e.flows.ListSessions(ctx, refreshToken)
	if err := e.sessionsError(ctx, "list_sessions", res); err != nil {
		return nil, err
	}

	views := make([]SessionView, 0, len(res.Sessions))
	for _, rec := range res.Sessions {
		views = append(views, newSessionView(rec))
	}
	e.emitAudit(ctx, auditEventSessionsListed, true, res.UserID, res.DeviceID, nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(views))}
	})
	return views, nil
}

// RevokeAllOtherDevices deletes every session of the caller except the one
// the credential belongs to and returns how many were removed. A nil error
// is the boolean success of the operation.
func (e *Engine) RevokeAllOtherDevices(ctx context.Context, refreshToken string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	res := e.flows.RevokeOthers(ctx, refreshToken)
	if err := e.sessionsError(ctx, "revoke_others", res); err != nil {
		if res.Failure == flows.SessionsFailureUnauthorized {
			e.emitAudit(ctx, auditEventRevokeOthers, false, "", "", err, nil)
		}
		return 0, err
	}

	e.metricInc(MetricRevokeOthers)
	for i := 0; i < res.Revoked; i++ {
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventRevokeOthers, true, res.UserID, res.DeviceID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(res.Revoked)}
	})
	return res.Revoked, nil
}

// RevokeDevice deletes target on behalf of the credential's owner. The
// outcome is decided in priority order Unauthorized, NotFound, Forbidden,
// Success. err is non-nil only for storage faults, with outcome RevokeFailed.
func (e *Engine) RevokeDevice(ctx context.Context, refreshToken, target string) (RevokeOutcome, error) {
	if !e.ready() {
		return RevokeFailed, ErrEngineNotReady
	}
	res := e.flows.RevokeDevice(ctx, refreshToken, target)

	var outcome RevokeOutcome
	switch res.Failure {
	case flows.SessionsFailureNone:
		outcome = RevokeSuccess
		e.metricInc(MetricRevokeDeviceSuccess)
		e.metricInc(MetricSessionRevoked)
	case flows.SessionsFailureUnauthorized:
		outcome = RevokeUnauthorized
		e.metricInc(MetricUnauthorized)
	case flows.SessionsFailureNotFound:
		outcome = RevokeNotFound
		e.metricInc(MetricRevokeDeviceNotFound)
	case flows.SessionsFailureForbidden:
		outcome = RevokeForbidden
		e.metricInc(MetricRevokeDeviceForbidden)
	default:
		return RevokeFailed, e.sessionsError(ctx, "revoke_device", res)
	}

	e.emitAudit(ctx, auditEventRevokeDevice, outcome == RevokeSuccess, res.UserID, res.DeviceID, outcome.Err(), func() map[string]string {
		return map[string]string{"target": target, "outcome": outcome.String()}
	})
	return outcome, nil
}

// ValidateAccess verifies an access credential without touching storage.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (AccessIdentity, error) {
	if !e.ready() {
		return AccessIdentity{}, ErrEngineNotReady
	}
	res := e.flows.Validate(accessToken)
	if !res.OK {
		e.metricInc(MetricAccessRejected)
		return AccessIdentity{}, ErrUnauthorized
	}
	e.metricInc(MetricAccessValidated)
	return AccessIdentity{
		UserID: res.Claims.UserID,
		Login:  res.Claims.Login,
		Email:  res.Claims.Email,
	}, nil
}
