// Package api binds the environment pool to its HTTP surface.
//
// The surface is four JSON control-plane operations (POST /create, /step,
// /reset, /close), a liveness probe (GET /health), Prometheus metrics
// (GET /metrics), and a lifecycle event stream (GET /events, server-sent
// events). Failures render as
//
//	{"error": {"code", "message", "retryable", "details"}}
//
// with the HTTP status taken from the error taxonomy. Reset bodies pass
// every key except env_id through to the adapter verbatim.
package api
