package deviceauth

import "errors"

var (
	// ErrAuthFailed is returned by Login for unknown logins and wrong
	// passwords alike.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrUnauthorized is returned when a refresh credential is invalid,
	// expired, stale, or no longer backed by a session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionNotFound is returned when a revocation target does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrForbidden is returned when a revocation target belongs to another user.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUnavailable is the generic failure for session store, user
	// store and rate counter faults. It is never returned for a domain
	// outcome.
	ErrStoreUnavailable = errors.New("storage unavailable")
	// ErrLoginRateLimited is returned when the login failure budget is spent.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when the per-device refresh budget is spent.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrUserNotFound is returned by UserProvider implementations.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenIssue wraps credential signing failures.
	ErrTokenIssue = errors.New("credential issue failed")
	// ErrEngineNotReady is returned by methods on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
