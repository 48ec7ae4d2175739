package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/deviceauth/session"
)

// SessionsFailureKind classifies failures of the session management flows
// (logout, list, revoke).
type SessionsFailureKind int

const (
	SessionsFailureNone SessionsFailureKind = iota
	SessionsFailureUnauthorized
	SessionsFailureNotFound
	SessionsFailureForbidden
	SessionsFailureStore
)

type SessionsStore interface {
	SessionReader
	Delete(ctx context.Context, userID, deviceID string, issuedAt time.Time) error
	DeleteAllExcept(ctx context.Context, userID, keepDeviceID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]session.Record, error)
}

// SessionsDeps captures logout and device-management dependencies.
type SessionsDeps struct {
	Authenticate AuthenticateDeps
	Store        SessionsStore
}

// SessionsResult carries the outcome of a session management flow.
type SessionsResult struct {
	Failure  SessionsFailureKind
	Auth     AuthFailureKind
	Err      error
	UserID   string
	DeviceID string
	Target   string
	Revoked  int
	Sessions []session.Record
}

func authenticateFor(ctx context.Context, token string, deps SessionsDeps) (Identity, SessionsResult, bool) {
	auth := RunAuthenticate(ctx, token, deps.Authenticate)
	switch auth.Failure {
	case AuthFailureNone:
		return auth.Identity, SessionsResult{}, true
	case AuthFailureStore:
		return Identity{}, SessionsResult{Failure: SessionsFailureStore, Auth: auth.Failure, Err: auth.Err}, false
	default:
		return Identity{}, SessionsResult{Failure: SessionsFailureUnauthorized, Auth: auth.Failure, Err: auth.Err}, false
	}
}

// RunLogout deletes the caller's own session, conditioned on the row still
// carrying the presented iat.
func RunLogout(ctx context.Context, token string, deps SessionsDeps) SessionsResult {
	id, failed, ok := authenticateFor(ctx, token, deps)
	if !ok {
		return failed
	}

	err := deps.Store.Delete(ctx, id.UserID, id.DeviceID, id.Session.IssuedAt)
	res := SessionsResult{UserID: id.UserID, DeviceID: id.DeviceID, Target: id.DeviceID}
	switch {
	case err == nil:
		res.Revoked = 1
	case isDomainMiss(err):
		// Lost a race with a concurrent rotation or revocation.
		res.Failure = SessionsFailureUnauthorized
		res.Err = err
	default:
		res.Failure = SessionsFailureStore
		res.Err = err
	}
	return res
}

// RunListSessions returns the caller's sessions, newest first.
func RunListSessions(ctx context.Context, token string, deps SessionsDeps) SessionsResult {
	id, failed, ok := authenticateFor(ctx, token, deps)
	if !ok {
		return failed
	}

	records, err := deps.Store.ListByUser(ctx, id.UserID)
	if err != nil {
		return SessionsResult{Failure: SessionsFailureStore, Err: err, UserID: id.UserID, DeviceID: id.DeviceID}
	}
	session.SortNewestFirst(records)
	return SessionsResult{UserID: id.UserID, DeviceID: id.DeviceID, Sessions: records}
}

// RunRevokeOthers deletes every session of the caller except the current
// device.
func RunRevokeOthers(ctx context.Context, token string, deps SessionsDeps) SessionsResult {
	id, failed, ok := authenticateFor(ctx, token, deps)
	if !ok {
		return failed
	}

	var err error
	for attempt := 0; attempt < conflictAttempts; attempt++ {
		var n int
		n, err = deps.Store.DeleteAllExcept(ctx, id.UserID, id.DeviceID)
		if err == nil {
			return SessionsResult{UserID: id.UserID, DeviceID: id.DeviceID, Revoked: n}
		}
		if !errors.Is(err, session.ErrIssuedAtMismatch) {
			break
		}
		// A concurrent writer touched one of the caller's rows. The caller
		// may have been rotated or revoked meanwhile, so authenticate again.
		if id, failed, ok = authenticateFor(ctx, token, deps); !ok {
			return failed
		}
	}
	return SessionsResult{Failure: SessionsFailureStore, Err: err, UserID: id.UserID, DeviceID: id.DeviceID}
}

// RunRevokeDevice deletes target on behalf of the caller. Outcome priority
// is unauthorized, then not found, then forbidden, then success.
func RunRevokeDevice(ctx context.Context, token, target string, deps SessionsDeps) SessionsResult {
	id, failed, ok := authenticateFor(ctx, token, deps)
	if !ok {
		failed.Target = target
		return failed
	}

	res := SessionsResult{UserID: id.UserID, DeviceID: id.DeviceID, Target: target}
	if target == "" {
		res.Failure = SessionsFailureNotFound
		return res
	}

	var err error
	for attempt := 0; attempt < conflictAttempts; attempt++ {
		// The delete is unconditional, so an issuedAt mismatch can only mean
		// a concurrent writer won the row. Deciding again sees its result.
		err = deps.Store.Delete(ctx, id.UserID, target, time.Time{})
		if !errors.Is(err, session.ErrIssuedAtMismatch) {
			break
		}
	}
	if errors.Is(err, session.ErrIssuedAtMismatch) {
		err = classifyTarget(ctx, id.UserID, target, deps.Store, err)
	}

	switch {
	case err == nil:
		res.Revoked = 1
	case errors.Is(err, session.ErrSessionNotFound):
		res.Failure = SessionsFailureNotFound
		res.Err = err
	case errors.Is(err, session.ErrOwnerMismatch):
		res.Failure = SessionsFailureForbidden
		res.Err = err
	default:
		res.Failure = SessionsFailureStore
		res.Err = err
	}
	return res
}

// conflictAttempts bounds how often a flow re-runs a delete that lost a
// transaction race.
const conflictAttempts = 3

// classifyTarget resolves a revoke that kept losing races by reading the
// target row. A row that vanished or belongs to someone else yields the
// matching domain error; a row the caller still owns keeps cause.
func classifyTarget(ctx context.Context, userID, target string, store SessionsStore, cause error) error {
	rec, err := store.Get(ctx, target)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return err
	case err != nil:
		return err
	case rec.UserID != userID:
		return session.ErrOwnerMismatch
	default:
		return cause
	}
}

func isDomainMiss(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrOwnerMismatch) ||
		errors.Is(err, session.ErrIssuedAtMismatch)
}
