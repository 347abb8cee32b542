// Package password hashes and verifies user passwords and holds the strength
// policy applied at registration and password reset.
//
// # Output format
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) are accepted by [Hasher.Verify] and
// always reported by [Hasher.NeedsUpgrade], so the caller can rehash them
// after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other goIdentity package.
//   - Log plaintext passwords.
package password
