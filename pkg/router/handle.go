package router

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brick-pid/simplegym/pkg/ipc"
	"github.com/brick-pid/simplegym/pkg/metrics"
	"github.com/brick-pid/simplegym/pkg/types"
	"github.com/rs/zerolog"
)

// workerHandle is the router-side actor for one worker: it owns the pipe,
// a mutex that serializes whole send-then-receive turns, and a reader
// goroutine feeding decoded responses into respCh. The mutex is what
// enforces the at-most-one-in-flight, strict-FIFO contract the wire
// protocol depends on.
type workerHandle struct {
	id   int
	proc Process
	conn *ipc.Conn

	mu      sync.Mutex
	respCh  chan ipc.Response
	healthy atomic.Bool

	logger zerolog.Logger
}

func newWorkerHandle(id int, proc Process, logger zerolog.Logger) *workerHandle {
	h := &workerHandle{
		id:     id,
		proc:   proc,
		conn:   ipc.NewConn(proc.Pipe()),
		respCh: make(chan ipc.Response, 4),
		logger: logger,
	}
	h.healthy.Store(true)
	go h.readLoop()
	return h
}

// readLoop is the handle's only pipe reader. It runs until the pipe
// errors or closes, then marks the handle dead. Keeping a single reader
// lets a timed-out caller abandon its turn while the eventual late
// response is still drained (and discarded by request id) instead of
// poisoning the next turn.
func (h *workerHandle) readLoop() {
	for {
		resp, err := h.conn.ReadResponse()
		if err != nil {
			h.healthy.Store(false)
			close(h.respCh)
			h.logger.Debug().Err(err).Msg("worker pipe reader exited")
			return
		}
		h.respCh <- resp
	}
}

// available reports whether the handle can accept a request.
func (h *workerHandle) available() bool {
	return h.healthy.Load() && h.proc.Alive()
}

// call performs one serialized send-then-receive turn. The deadline bounds
// only the caller's wait: on expiry the worker keeps running and its late
// response is discarded by the read loop consumer of a later turn.
func (h *workerHandle) call(ctx context.Context, req ipc.Request, timeout time.Duration) (ipc.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.available() {
		return ipc.Response{}, types.ErrEnvNotReady(h.unavailableMsg())
	}

	start := time.Now()
	if err := h.conn.WriteRequest(req); err != nil {
		h.healthy.Store(false)
		h.logger.Error().Err(err).Msg("failed to send request to worker")
		return ipc.Response{}, types.ErrEnvNotReady(h.unavailableMsg())
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case resp, ok := <-h.respCh:
			if !ok {
				return ipc.Response{}, types.ErrEnvNotReady(h.unavailableMsg())
			}
			if resp.RequestID != req.RequestID {
				// Late reply to a previously timed-out request.
				h.logger.Warn().
					Str("request_id", resp.RequestID).
					Str("expected", req.RequestID).
					Msg("discarding stale worker response")
				continue
			}
			metrics.IPCRequestDuration.WithLabelValues(string(req.Command)).
				Observe(time.Since(start).Seconds())
			return resp, nil
		case <-timer.C:
			metrics.IPCTimeouts.Inc()
			h.logger.Warn().
				Str("command", string(req.Command)).
				Dur("timeout", timeout).
				Msg("worker response timed out")
			return ipc.Response{}, types.NewErrorf(types.CodeEnvNotReady,
				"worker %d timed out after %s", h.id, timeout)
		case <-ctx.Done():
			return ipc.Response{}, ctx.Err()
		}
	}
}

func (h *workerHandle) unavailableMsg() string {
	return fmt.Sprintf("worker %d is not available", h.id)
}

// sendOnly writes a request without awaiting the reply and without
// taking the turn mutex, so SHUTDOWN reaches a worker even while a slow
// call is in flight. The codec's write lock keeps frames whole; the ack
// is consumed by the read loop and dropped.
func (h *workerHandle) sendOnly(req ipc.Request) error {
	return h.conn.WriteRequest(req)
}
