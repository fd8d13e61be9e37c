// Package prometheus exposes carebook Engine metrics through client_golang.
//
// [Collector] renders every counter as carebook_*_total and the verification
// latency as the carebook_verify_latency_seconds histogram. [Handler] mounts it
// on a private registry.
//
// # What this package must NOT do
//
//   - Register collectors in the global default registry.
//   - Mutate engine state.
package prometheus
