// Package stores provides the Redis-backed password reset record store and
// the OAuth state replay marker.
//
// # Design
//
// Records are versioned binary blobs with a TTL. Consume uses a WATCH/MULTI
// optimistic transaction, retried on contention, so the unused to used
// transition happens exactly once even under concurrent redemption. A used
// record is kept until its TTL so a replay observes the used state rather than
// an absent key. Release undoes a consume when the caller's follow-up write
// fails. Secret hashes are compared in constant time.
//
// OAuth state nonces are marked with SETNX for the state lifetime; a second
// consume of the same nonce reports false.
//
// # What this package must NOT do
//
//   - Import goIdentity or any sibling internal package.
//   - Generate tokens or decide what happens after a successful consume.
//   - Log or expose secrets.
package stores
