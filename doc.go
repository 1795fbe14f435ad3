// Package auth is the authentication and session-consistency core of the
// food-delivery platform: access and refresh token issuance and rotation,
// server-side single-session enforcement, registration, activation and
// password reset.
//
// An [Engine] is assembled once with [New] and [Builder.Build] and is safe
// for concurrent use afterwards.
//
// # Single session
//
// Every successful login writes the user's registry record, replacing the
// previous one. [Engine.Authorize] compares the presented access token with
// the registry's current token before any cryptographic check, so a token
// issued to an older login is rejected with [ErrSupersededSession] even while
// it is still within its lifetime.
//
// # Architecture boundaries
//
// auth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types. Flow orchestration, rate limiting and audit dispatch live
// under internal/. Token signing lives in package jwt, the registry in
// package session, and hashing in package password.
//
// # What this package must NOT do
//
//   - Expose Redis clients or registry encoding in its public API.
//   - Perform I/O outside of Engine methods.
//   - Import middleware, client or store packages (they import auth).
package auth
