// Package token signs and verifies the session bearer tokens carried in the
// session cookie. Verification fails closed: every rejection collapses to
// ErrInvalidToken.
package token
