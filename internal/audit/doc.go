// Package audit relays security events off the request path.
//
// # Components
//
//   - [Event]: one record with timestamp, type, user, email, operation, IP and error code.
//   - [Sink] implementations: [NoOpSink], [ChannelSink], [JSONWriterSink], [SlogSink] and
//     [MultiSink]. The writer and slog sinks mask emails with [MaskEmail].
//   - [Dispatcher]: a buffered relay goroutine with drop-if-full or block-if-full
//     semantics and a per-delivery timeout.
//
// The Engine decides which events to emit. This package must not import the
// root auth package.
package audit
