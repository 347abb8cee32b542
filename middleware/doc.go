// Package middleware gates requests by path class and session validity.
//
// A [Policy] classifies every path as public, protected or auth-only and
// turns (class, authenticated) into a [Decision]:
//
//	protected + anonymous     redirect to login with ?next=<path>
//	protected + authenticated allow
//	auth-only + authenticated redirect to the landing page
//	auth-only + anonymous     allow
//	public                    allow
//
// [Guard] runs the policy before any handler, validating the session cookie
// through the Engine once per request. The resolved principal is available
// to handlers through [PrincipalFromContext].
//
// This package makes no authentication decisions of its own; validation is
// delegated to the Engine and a failed validation is simply "anonymous".
package middleware
