// Package client is the browser-side half of the session protocol for Go
// callers: an http.RoundTripper that recovers from an expired access token
// by refreshing once and replaying the request.
//
// # Coordinator
//
// [Coordinator] serializes refreshes. Any number of requests that fail
// authentication while a refresh is in flight wait for that one refresh; its
// outcome is broadcast to all of them. A failed refresh clears the local
// credentials so later failures are not retried until the next login.
//
// The coordinator is a single goroutine owning the in-flight flag and the
// waiter list; callers only talk to it over channels.
//
// # Transport
//
// [Transport] carries credentials ambiently in a cookie jar, recognizes the
// retryable failure codes (UNAUTHENTICATED, TOKEN_EXPIRED) and replays a
// request at most once. Every other code is surfaced unchanged.
package client
