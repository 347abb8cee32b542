// Package oauth wraps authorization-code providers behind one [Client]
// interface built on golang.org/x/oauth2.
//
// Exchange and UserInfo never return a bare error. They return a tagged
// [Result] whose [ErrorKind] is the only thing callers branch on, so every
// provider fails in the same shape regardless of how its API reports errors.
//
// # What this package must NOT do
//
//   - Manage state nonces or cookies.
//   - Create users or sessions.
package oauth
