// Package middleware adapts deviceauth.Engine to net/http.
//
// # Middleware
//
//   - [ClientInfo] attaches the caller's IP and User-Agent to the request
//     context so Login and Refresh can record them on the device session.
//   - [RequireAccess] verifies a bearer access credential and injects the
//     caller's identity.
//
// Access checks are stateless: a valid access credential is accepted until
// it expires even if its device session was revoked. Handlers that must
// observe revocation authenticate with the refresh credential instead.
package middleware
