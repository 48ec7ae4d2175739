// Package session provides Redis-backed persistence for per-device sessions.
//
// # Layout
//
// Every session is one Redis hash keyed by device ID:
//
//	<prefix>:d:<deviceId>  -> {uid, iat, exp, ip, title}
//	<prefix>:u:<userId>    -> set of deviceIds owned by the user
//
// Hash keys carry a TTL equal to the refresh credential lifetime. The user
// index is pruned lazily when sessions are listed or mass-revoked.
//
// # Atomicity
//
// Rotation, conditional delete and delete-all-except each run as a single
// Lua script so that the read-compare-write sequence cannot interleave with
// another caller touching the same device.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Record] model. It does NOT parse
// credentials or decide who is authenticated. Those responsibilities belong
// to the Engine.
//
// # What this package must NOT do
//
//   - Import deviceauth or jwt (no upward imports).
//   - Store signed credentials; only their issuance time is persisted.
package session
