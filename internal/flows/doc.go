// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunIssueSession, RunCompleteOAuth, ...) takes
// a typed dependency struct of closures and returns results without side
// effects beyond those dependencies. The Engine builds the deps per call.
//
// # Architecture boundaries
//
// Flows coordinate the credential store, session store, token codec, rate
// limiter, notifier, audit and metrics. They own none of them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goIdentity (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through dependency closures.
package flows
