// Package mockenv implements a deterministic text-adventure adapter.
//
// It is the reference implementation of the wrapper contract and the
// simulator behind the pool's own tests: observations and task
// descriptors depend only on task_id, never on which worker serves the
// instance, so trajectory replays are reproducible across pool widths.
package mockenv
