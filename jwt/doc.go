// Package jwt issues and verifies the four signed credentials used by the
// auth core: access, refresh, activation and reset tokens.
//
// Each purpose is signed with its own secret and carries a signed "pur"
// claim, so a token minted for one purpose never verifies under another.
// Verification reports expiry, malformed input and purpose confusion as
// distinct errors ([ErrExpired], [ErrMalformed], [ErrWrongPurpose]).
//
// # Architecture boundaries
//
// The [Manager] is a pure function of its inputs, the configured clock and
// the secret material. It does NOT consult the session registry; liveness of
// an access token (whether it has been superseded) is decided by the caller.
package jwt
