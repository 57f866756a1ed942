package worker

import (
	"errors"
	"fmt"
	"io"

	"github.com/brick-pid/simplegym/pkg/ipc"
	"github.com/brick-pid/simplegym/pkg/log"
	"github.com/brick-pid/simplegym/pkg/types"
	"github.com/brick-pid/simplegym/pkg/wrapper"
	"github.com/rs/zerolog"
)

// Worker owns one wrapper instance and serves IPC requests from a single
// pipe, strictly one at a time in FIFO order. That serial loop is the
// re-entrancy guarantee adapters with stateful parsers depend on.
type Worker struct {
	id       int
	parallel int
	conn     *ipc.Conn
	factory  wrapper.Factory
	cfg      wrapper.Config
	logger   zerolog.Logger
}

// New creates a worker bound to its pipe. id is the worker's index in
// [0, parallel).
func New(pipe io.ReadWriteCloser, id, parallel int, factory wrapper.Factory, cfg wrapper.Config) *Worker {
	return &Worker{
		id:       id,
		parallel: parallel,
		conn:     ipc.NewConn(pipe),
		factory:  factory,
		cfg:      cfg,
		logger:   log.WithComponent("worker").With().Int("worker_id", id).Logger(),
	}
}

// Serve constructs the wrapper, acknowledges readiness with the __init__
// response, and runs the serve loop until SHUTDOWN or pipe closure. It
// returns nil on a clean exit; a wrapper construction failure is reported
// to the router and returned.
func (w *Worker) Serve() error {
	w.logger.Info().Int("parallel_actor", w.parallel).Msg("worker starting")

	env, err := w.factory(w.cfg)
	if err != nil {
		w.logger.Error().Err(err).Msg("wrapper construction failed")
		_ = w.conn.WriteResponse(ipc.Fail(ipc.InitRequestID, types.ErrInternal(err)))
		return fmt.Errorf("wrapper construction failed: %w", err)
	}

	if err := w.conn.WriteResponse(ipc.Response{RequestID: ipc.InitRequestID, Success: true}); err != nil {
		return fmt.Errorf("failed to send readiness: %w", err)
	}
	w.logger.Info().Msg("worker ready")

	for {
		req, err := w.conn.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.logger.Info().Msg("pipe closed, exiting")
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}

		if req.Command == ipc.CommandShutdown {
			w.drain(env)
			_ = w.conn.WriteResponse(ipc.OK(req.RequestID, true))
			w.logger.Info().Msg("worker shut down")
			return nil
		}

		resp := w.handle(env, req)
		if err := w.conn.WriteResponse(resp); err != nil {
			w.logger.Error().Err(err).Msg("cannot send response, exiting")
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// handle dispatches one request to the wrapper and maps its result onto
// the wire. Typed errors keep their code; anything else is flattened to
// INTERNAL_ERROR after a local diagnostic.
func (w *Worker) handle(env wrapper.EnvWrapper, req ipc.Request) ipc.Response {
	payload, err := w.dispatch(env, req)
	if err == nil {
		return ipc.OK(req.RequestID, payload)
	}

	var envErr *types.EnvError
	if errors.As(err, &envErr) {
		return ipc.Fail(req.RequestID, envErr)
	}

	w.logger.Error().Err(err).
		Str("command", string(req.Command)).
		Int("env_id", req.EnvID).
		Stack().
		Msg("unhandled wrapper error")
	return ipc.Fail(req.RequestID, types.ErrInternal(err))
}

func (w *Worker) dispatch(env wrapper.EnvWrapper, req ipc.Request) (any, error) {
	switch req.Command {
	case ipc.CommandCreate:
		return env.CreateWithID(req.EnvID)
	case ipc.CommandStep:
		return env.Step(req.EnvID, req.Action)
	case ipc.CommandReset:
		return env.Reset(req.EnvID, req.Params)
	case ipc.CommandClose:
		return env.Close(req.EnvID)
	case ipc.CommandPing:
		return "pong", nil
	default:
		return nil, types.NewErrorf(types.CodeInternalError, "unknown command %q", req.Command)
	}
}

// drain closes every live environment, best effort, before shutdown.
func (w *Worker) drain(env wrapper.EnvWrapper) {
	live := env.Live()
	w.logger.Info().Int("environments", len(live)).Msg("draining before shutdown")
	for _, envID := range live {
		if _, err := env.Close(envID); err != nil {
			w.logger.Warn().Err(err).Int("env_id", envID).Msg("close failed during drain")
		}
	}
}
