// Package store holds access/refresh token pairs for tokenflow callbacks.
//
// The coordinator never reads tokens itself; callers wire a [TokenStore] into
// their AssignToken, isExpired and refresh handler callbacks. Pairs are keyed by
// scope so independent authentication scopes (tenants, accounts) can share one
// backend.
//
// # What this package must NOT do
//
//   - Import tokenflow or refresh.
//   - Decide whether a token is expired; it only reports the stored expiry.
package store
