// Package wrapper defines the adapter contract that makes any simulator
// pluggable into the worker pool.
//
// An EnvWrapper manages many environment instances keyed by integer ids,
// all owned by one worker subprocess and driven from a single goroutine.
// Adapters register a Factory by name in an init function; the worker
// subprocess resolves the factory from its command line and builds exactly
// one wrapper at startup.
//
// Table implements the per-instance lifecycle bookkeeping (done, deleted,
// last observation) that every adapter otherwise reinvents.
package wrapper
