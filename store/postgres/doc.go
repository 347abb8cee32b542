// Package postgres is a goIdentity.CredentialStore backed by PostgreSQL.
//
// Connections go through database/sql with the pgx stdlib driver, wrapped in
// sqlx for struct scanning. The schema ships as embedded goose migrations
// (see Migrate). Provider access and refresh tokens of linked accounts are
// sealed with XChaCha20-Poly1305 before they reach the database; without a
// Sealer they are not persisted at all.
package postgres
