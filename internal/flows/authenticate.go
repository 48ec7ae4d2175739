package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/deviceauth/jwt"
	"github.com/MrEthical07/deviceauth/session"
)

// AuthFailureKind classifies why a refresh credential was not accepted.
// Every kind except AuthFailureStore is reported to callers as the same
// unauthorized outcome.
type AuthFailureKind int

const (
	AuthFailureNone AuthFailureKind = iota
	AuthFailureInvalidToken
	AuthFailureSessionNotFound
	AuthFailureOwnerMismatch
	AuthFailureStale
	AuthFailureStore
)

// Identity is the verified caller behind a refresh credential whose session
// row is still current.
type Identity struct {
	UserID   string
	DeviceID string
	Session  session.Record
}

// AuthenticateResult carries either the identity or failure metadata.
type AuthenticateResult struct {
	Failure  AuthFailureKind
	Err      error
	Identity Identity
	// Claims is set whenever the signature verified, so failures past that
	// point can still be attributed to a user and device.
	Claims *jwt.RefreshClaims
}

type SessionReader interface {
	Get(ctx context.Context, deviceID string) (session.Record, error)
}

// AuthenticateDeps captures what authenticate needs.
type AuthenticateDeps struct {
	VerifyRefresh func(string) (*jwt.RefreshClaims, bool)
	Sessions      SessionReader
}

// RunAuthenticate verifies token with the refresh secret and checks that the
// stored session for its device exists, belongs to the token's user and was
// issued at the token's iat.
func RunAuthenticate(ctx context.Context, token string, deps AuthenticateDeps) AuthenticateResult {
	claims, ok := deps.VerifyRefresh(token)
	if !ok {
		return AuthenticateResult{Failure: AuthFailureInvalidToken}
	}

	rec, err := deps.Sessions.Get(ctx, claims.DeviceID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return AuthenticateResult{Failure: AuthFailureSessionNotFound, Err: err, Claims: claims}
		}
		return AuthenticateResult{Failure: AuthFailureStore, Err: err, Claims: claims}
	}
	if rec.UserID != claims.UserID {
		return AuthenticateResult{Failure: AuthFailureOwnerMismatch, Claims: claims}
	}
	if rec.IssuedAt.Unix() != claims.IssuedAt.Unix() {
		return AuthenticateResult{Failure: AuthFailureStale, Claims: claims}
	}

	return AuthenticateResult{
		Failure: AuthFailureNone,
		Claims:  claims,
		Identity: Identity{
			UserID:   claims.UserID,
			DeviceID: claims.DeviceID,
			Session:  rec,
		},
	}
}
