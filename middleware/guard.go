package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/deviceauth"
)

// AccessValidator is satisfied by *deviceauth.Engine.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, accessToken string) (deviceauth.AccessIdentity, error)
}

type identityContextKey struct{}

func IdentityFromContext(ctx context.Context) (deviceauth.AccessIdentity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(deviceauth.AccessIdentity)
	return id, ok
}

// RequireAccess rejects requests without a valid "Authorization: Bearer"
// access credential with 401.
func RequireAccess(validator AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := validator.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
