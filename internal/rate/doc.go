// Package rate provides Redis-backed fixed-window counters for login and
// refresh throttling.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on first hit. Key prefixes:
//   - <prefix>:rl:  login failures per login name
//   - <prefix>:rli: login failures per client IP
//   - <prefix>:rr:  refresh attempts per device
//
// # What this package must NOT do
//
//   - Decide what a rejected request looks like to the caller.
//   - Be imported outside the deviceauth module.
package rate
