// Package session is the session registry: one record per user id holding a
// denormalized profile snapshot and the single access token currently
// allowed to authorize requests for that user.
//
// # Single-session invariant
//
// [Registry.Put] is a full overwrite and last writer wins. Because the gate
// compares a presented token byte-for-byte with [Registry.CurrentToken], a
// put by a later login or refresh supersedes every previously issued token
// for that user without any cryptographic revocation.
//
// # Binary encoding
//
// Records are stored as one compact binary blob (see [Encode]) so the
// snapshot and the token are written by a single SET and can never be read
// as a mixed pair. The refresh hash lives at a fixed offset so the Redis
// rotation script can compare it without decoding the rest.
//
// # Implementations
//
//   - [RedisStore]: go-redis backed, per-key atomic.
//   - [MemoryStore]: in-process, guarded by one mutex.
package session
