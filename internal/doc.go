// Package internal holds helpers private to goIdentity: random identifiers,
// OAuth state values and the reset-token encoding.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators behind every Engine operation
//   - notify: bounded background delivery of reset notifications
//   - rate: Redis-backed fixed-window login throttling
//   - stores: Redis records for single-use password-reset tokens and OAuth states
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Be imported by any package outside the goIdentity module.
package internal
