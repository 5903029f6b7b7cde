// Package tokenflow coordinates access/refresh token handling for an HTTP
// request pipeline.
//
// An [Authenticator] classifies every outgoing [Method] by role (visitor,
// login, logout, refresh-self or protected) from its [Meta] tags, attaches the
// current token, and funnels concurrent token refreshes through one
// [refresh.Coordinator] so that a burst of requests observing an expired token
// triggers exactly one refresh.
//
// Two variants exist. [Builder.BuildClient] refreshes before a protected
// request is sent (eager). [Builder.BuildServer] refreshes after a response or
// error signals expiry and then replays the request (reactive), bounded by
// [ReplayConfig.MaxReplays].
//
// # Architecture boundaries
//
// tokenflow is the public surface: [Client], [Method], [Authenticator],
// [Builder], [Config] and the token helpers. The matching rules live in
// internal/match, event delivery in internal/events and the state machine in
// package refresh. Token values are never held here; callers keep them in a
// [store.TokenStore] or their own storage and expose them through callbacks.
//
// # What this package must NOT do
//
//   - Log or retry on behalf of a caller; every failure returns through the
//     caller's own error channel.
//   - Touch visitor requests beyond classifying them.
//   - Import any sub-package that re-imports tokenflow (no import cycles).
package tokenflow
