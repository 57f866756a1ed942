// Package ipc defines the request/response protocol between the router and
// its worker subprocesses.
//
// Messages are JSON records framed with a 4-byte big-endian length prefix
// and exchanged over a bidirectional byte pipe (the worker's stdin/stdout
// in production). The protocol is strictly 1:1 and FIFO per pipe: the
// router never has more than one request in flight on a worker, and every
// response echoes the request id it answers.
//
// Error information crosses the pipe as (code, message, retryable); typed
// errors exist only at the two endpoints. The serialized form is the
// source of truth.
package ipc
