// Package internaldefs holds the metric names and bucket bounds shared by the
// tokenflow exporters.
//
// Both the Prometheus and OTel exporters render from these definitions, so a
// rename here changes every exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
