// Package rate provides the Redis fixed-window counters behind login and
// password-reset throttling.
//
// # Window semantics
//
// [Window.Hit] runs INCR and, on the first hit, PEXPIRE in one Lua script.
// Denials are [*LimitedError] values carrying the time left in the window;
// they match [ErrRateLimited] under errors.Is. Login keys live under the
// registry prefix:
//   - <prefix>:rl:login:u:<email>  failed logins per account
//   - <prefix>:rl:login:ip:<ip>    failed logins per client IP
//
// What a limit means for the caller belongs to the flow that asked.
package rate
