// Package session provides the Redis-backed record behind every session
// cookie, plus its compact binary encoding.
//
// # Binary encoding
//
// Sessions are stored as a versioned binary blob: a version byte, then
// length-prefixed strings, then big-endian int64 timestamps. New versions may
// append fields but never reinterpret old ones.
//
// # Keys
//
//	<prefix>:<sessionID>   encoded Session, TTL equal to the session lifetime
//	<prefix>u:<userID>     set of the user's session IDs
//
// # What this package must NOT do
//
//   - Import goIdentity or token (no upward imports).
//   - Decide whether a request is authenticated.
package session
