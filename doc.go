// Package goIdentity is the identity and session engine: password and OAuth
// login, registration, signed session cookies backed by revocable Redis
// records, password reset, and the data a route guard needs.
//
// Build an [Engine] with [Builder]. The engine is immutable after Build and
// its methods are safe to call from many goroutines.
//
// # Architecture boundaries
//
// This package is the public surface: [Engine], [Builder], [Config], the
// [CredentialStore] and [Notifier] boundaries, and value types. Flow
// orchestration, Redis record encoding, throttling, audit and notification
// dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients or record encodings in its API.
//   - Hold package-level mutable state; everything hangs off an Engine.
//   - Import a sub-package that imports goIdentity (httpapi, middleware,
//     store/...).
package goIdentity
