// Package internaldefs is the single naming table for exported goGuard
// metrics. The prometheus and otel exporters both read it, so a series has
// the same name and bucket bounds in either backend.
//
// # What this package must NOT do
//
//   - Depend on either exporter.
//   - Read the engine; exporters pass snapshots in.
package internaldefs
