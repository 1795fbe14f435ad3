// Package limiters provides domain-specific throttles built on the
// fixed-window counters of internal/rate.
//
// # Limiters
//
//   - [PasswordResetLimiter]: per-email and per-IP budget of reset mails.
//
// Limiters are nil-safe: calling a method on a nil receiver returns nil.
// Each limiter owns its key namespace under the registry prefix. The caller
// decides what a denial means.
package limiters
