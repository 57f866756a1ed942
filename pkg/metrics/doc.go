// Package metrics exposes Prometheus metrics for the environment pool:
// worker liveness, environment counts, IPC round-trip latency and
// timeouts, and API request rates. Collectors are package-level and
// registered at init; Handler serves them for the /metrics endpoint.
package metrics
