// Package userstore provides [deviceauth.UserProvider] implementations.
//
// [Memory] keeps users in process and is meant for development and tests.
// [Postgres] reads a single users table through a pgx connection pool.
// Both treat logins case-insensitively and return
// [deviceauth.ErrUserNotFound] for unknown users.
//
// Account administration is out of scope; Create exists to seed users.
package userstore
