// Package rate provides Redis-backed fixed-window counters for login
// throttling and password-reset request quotas.
//
// # Window semantics
//
// Fixed-window counters: INCR, then EXPIRE on the first hit. Key prefixes:
//   - gil:  login failures per email
//   - gili: login failures per client IP
//   - gir:  reset requests per email
//
// # What this package must NOT do
//
//   - Decide how a limit is surfaced to the client.
//   - Be imported outside the goIdentity module.
package rate
