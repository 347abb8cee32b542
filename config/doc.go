// Package config loads deployment settings from GOIDENTITY_* environment
// variables and turns them into a goIdentity.Config, the built-in OAuth
// clients and a process logger.
package config
