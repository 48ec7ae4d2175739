// Package deviceauth issues access and refresh credentials and tracks one
// session per logged-in device.
//
// Every device session is a single row keyed by deviceId. The row stores the
// issuance time of the only refresh credential currently valid for that
// device, so a refresh both mints a successor and retires its predecessor in
// one compare-and-swap. Presenting a retired credential is indistinguishable
// from presenting garbage: both yield [ErrUnauthorized].
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// deviceauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (TokenPair, SessionView, RevokeOutcome). Flow orchestration
// and rate limiting live under internal/ and are never exported. Session
// backends live in session/ and session/badgerstore/.
//
// # What this package must NOT do
//
//   - Expose Redis clients or store encodings in its public API.
//   - Log. Observability goes through audit events and metrics.
//   - Import any sub-package that re-imports deviceauth (no import cycles).
package deviceauth
