// Package prometheus renders goGuard engine metrics in the Prometheus text
// exposition format.
//
// [NewExporter] reads an [goGuard.Engine] on every scrape. Counters are named
// goguard_*_total; the single histogram is goguard_login_latency_seconds.
// Sources that report live sessions also get a goguard_sessions_active gauge.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
