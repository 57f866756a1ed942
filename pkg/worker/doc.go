/*
Package worker implements the subprocess side of the environment pool.

A worker is born with a pipe, its worker id, the pool width, and a
wrapper factory. It constructs exactly one wrapper, reports readiness
through the reserved __init__ response, then serves requests one at a
time:

	          pipe                    serial loop
	router ──────────► read request ──► dispatch to wrapper ──► write response
	                        ▲                                        │
	                        └────────────────────────────────────────┘

The loop is strictly FIFO and single-threaded. Adapters are never called
concurrently, which is the correctness foundation for simulators whose
parsers or process-global state are not re-entrant.

SHUTDOWN closes every live environment (best effort), acknowledges, and
exits the loop; end-of-pipe exits cleanly without an acknowledgement.
*/
package worker
