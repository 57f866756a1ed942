// Package types defines the domain vocabulary shared by every SimpleGym
// component: environment and worker identifiers, operation result payloads,
// reset options, and the closed error taxonomy.
//
// The taxonomy is the sole error vocabulary between workers and the
// router. Workers serialize an EnvError's code, message and retryable flag
// into the IPC response; the router reconstructs the typed error from the
// code. Anything outside the taxonomy is flattened to INTERNAL_ERROR.
package types
