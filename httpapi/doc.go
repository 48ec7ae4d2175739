// Package httpapi serves the device session manager over HTTP with a chi
// router.
//
// Routes:
//
//	POST   /auth/login                 {login,password} -> 200 {accessToken} + refreshToken cookie
//	POST   /auth/refresh-token         refreshToken cookie -> 200 {accessToken} + new cookie
//	POST   /auth/logout                refreshToken cookie -> 204
//	GET    /auth/me                    Bearer access -> 200 {email,login,userId}
//	GET    /security/devices           refreshToken cookie -> 200 [session views]
//	DELETE /security/devices           refreshToken cookie -> 204
//	DELETE /security/devices/{id}      refreshToken cookie -> 204, 401, 403 or 404
//	GET    /healthz, /readyz, /metrics
//
// Bad credentials map to 401, rate limits to 429 and storage faults to 503.
// Error bodies are {"error": "..."} and never say which check failed.
package httpapi
