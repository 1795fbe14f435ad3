// Package prometheus renders engine metrics in Prometheus text exposition
// format without depending on the Prometheus client library.
//
// Counters are grouped into labeled families such as
// fd_auth_gate_decisions_total{outcome="superseded"}. The single histogram
// is fd_auth_authorize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
