// Package middleware adapts auth.Engine to host transports: net/http, gin and
// gRPC unary calls.
//
// # Adapters
//
//   - [Gate]: net/http middleware.
//   - [GinGate]: the same gate as a gin.HandlerFunc.
//   - [UnaryServerInterceptor]: gRPC unary interceptor.
//
// Each adapter resolves the operation name (GraphQL top-level field, route
// or gRPC method), reads the bearer token from the Authorization header or
// the access cookie, calls Engine.Authorize and either attaches the identity
// to the request context or writes a rejection whose code is the
// machine-readable auth.Code.
//
// [SetSessionCookies] and [ClearSessionCookies] write the cookie pair that
// web clients carry between requests.
//
// # What this package must NOT do
//
//   - Parse or verify JWTs (delegates to the Engine).
//   - Retry or refresh on rejection; rejections are terminal for the request.
package middleware
