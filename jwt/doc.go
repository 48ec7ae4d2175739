// Package jwt mints and verifies the two credential kinds used by deviceauth:
// short-lived access credentials and long-lived rotating refresh credentials.
//
// Each kind is signed with its own HS256 secret and carries a typ claim, so
// a credential of one kind never verifies as the other. Verification never
// returns an error: every failure mode collapses to ok == false so callers
// cannot branch on why a credential was rejected.
package jwt
