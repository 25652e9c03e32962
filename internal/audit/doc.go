// Package audit dispatches security-relevant engine events to a sink off the
// request path.
//
// # Components
//
//   - [Event] is the structured record: type, username, session, IP, outcome.
//   - [Sink] consumes events. Channel, JSON-lines, slog and no-op sinks ship here.
//   - [Dispatcher] relays events through a buffered channel, either dropping
//     or blocking when the buffer is full.
//
// This package does not decide which events to emit. The engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goGuard or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
