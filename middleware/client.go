package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/deviceauth"
)

// ClientInfo records the caller's address and User-Agent in the request
// context. With trustProxy set, the first X-Forwarded-For entry wins over
// RemoteAddr; enable it only behind a proxy that overwrites the header.
func ClientInfo(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := deviceauth.WithClientIP(r.Context(), clientIP(r, trustProxy))
			ctx = deviceauth.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
