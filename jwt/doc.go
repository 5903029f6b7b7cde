// Package jwt reads expiry information from JWT access tokens held by a client.
//
// Clients usually cannot verify the signature of the tokens they carry, so
// parsing here is deliberately unverified: the result only decides whether a
// refresh is worth attempting and is never used for authorization.
//
// # What this package must NOT do
//
//   - Treat a parsed token as authenticated.
//   - Import tokenflow or store.
package jwt
