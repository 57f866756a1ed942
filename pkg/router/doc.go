/*
Package router implements the environment pool supervisor.

The router owns P worker processes, each hosting one simulator wrapper.
External operations are dispatched by residue: environment e is served by
worker e mod P for its whole lifetime.

	                      ┌────────────────────────────┐
	 create/step/reset ──►│           Router           │
	 close/health         │  id counter │ handle table │
	                      └──────┬──────────────┬──────┘
	                   handle 0  │              │  handle P-1
	                 ┌───────────▼───┐      ┌───▼───────────┐
	                 │ mutex + pipe  │ ...  │ mutex + pipe  │
	                 └───────┬───────┘      └───────┬───────┘
	                         │ framed JSON          │
	                 ┌───────▼───────┐      ┌───────▼───────┐
	                 │   worker 0    │      │  worker P-1   │
	                 │ (subprocess)  │      │ (subprocess)  │
	                 └───────────────┘      └───────────────┘

Each handle serializes whole send-then-receive turns under a mutex, so a
pipe never carries more than one request at a time and responses cannot
interleave. A timed-out call abandons its turn; the worker finishes the
command anyway and the late reply is discarded by request id.

Worker processes come from a Spawner. ExecSpawner re-executes the running
binary's worker subcommand over stdin/stdout; InprocSpawner runs the serve
loop in a goroutine for embedded single-process deployments and tests,
trading away process isolation.
*/
package router
