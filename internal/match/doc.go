// Package match implements the metadata pattern matcher used to classify
// requests into authentication roles.
//
// # What this package must NOT do
//
//   - Import tokenflow or any sibling package.
//   - Mutate the metadata or patterns it is given.
package match
