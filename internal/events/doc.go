// Package events implements asynchronous delivery of refresh lifecycle events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: lifecycle record with timestamp, type, method identity and outcome.
//
// The package owns buffering and sink delivery. Which events are emitted is decided
// by the tokenflow flows.
//
// # What this package must NOT do
//
//   - Import tokenflow or any sibling internal package.
//   - Feed events back into request handling.
package events
