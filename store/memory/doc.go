// Package memory is an in-process goIdentity.CredentialStore for tests,
// development servers and single-instance deployments. Data is lost on exit.
package memory
