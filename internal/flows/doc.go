// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunRevokeDevice, etc.) accepts a
// typed dependency struct and returns a result carrying a failure kind. The
// root package maps failure kinds onto its sentinel errors, metrics and
// audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, credential issuer,
// rate limiter and user provider. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import deviceauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency fields.
package flows
