// Package internal holds helpers private to the auth module. Today that is
// the activation code generator.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: pure-function orchestrators for authorize, login and refresh
//   - limiters: password reset request throttling
//   - rate: Redis counters behind login throttling
package internal
