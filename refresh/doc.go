// Package refresh implements the single-flight coordinator that serializes token
// refreshes across concurrent requests.
//
// # State machine
//
// A [Coordinator] is either idle or refreshing. The first caller that needs a
// refresh while idle becomes the owner and runs the refresh handler. Callers that
// arrive while a refresh is outstanding are queued and suspended; when the owner's
// handler settles (success, failure or panic) every queued caller is released in
// arrival order and the coordinator returns to idle inside the same critical
// section, so no newcomer can take ownership while stale waiters are pending.
//
// # Failure scope
//
// A handler error is returned to the owner only. Waiters resume with
// [Waited] and no error; their own follow-up request surfaces any remaining
// authentication failure.
//
// # What this package must NOT do
//
//   - Import tokenflow, store or any transport package.
//   - Retry the handler or cache its error.
//   - Hold the lock while calling isExpired, the handler or an [Observer].
package refresh
