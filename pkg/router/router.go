package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brick-pid/simplegym/pkg/events"
	"github.com/brick-pid/simplegym/pkg/ipc"
	"github.com/brick-pid/simplegym/pkg/log"
	"github.com/brick-pid/simplegym/pkg/metrics"
	"github.com/brick-pid/simplegym/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultIPCTimeout bounds one send-then-receive turn on a worker.
	DefaultIPCTimeout = 120 * time.Second

	// DefaultStartupTimeout bounds the wait for a worker's readiness ack.
	DefaultStartupTimeout = 120 * time.Second

	shutdownGrace = 10 * time.Second
	killGrace     = 5 * time.Second
)

// Config holds configuration for creating a Router
type Config struct {
	// ParallelActor is the pool width P. Fixed at startup.
	ParallelActor int

	// Spawner creates the worker processes.
	Spawner Spawner

	// IPCTimeout bounds each worker round trip. Zero means the default.
	IPCTimeout time.Duration

	// StartupTimeout bounds each worker's readiness wait. Zero means the
	// default.
	StartupTimeout time.Duration

	// Broker receives pool lifecycle events when non-nil.
	Broker *events.Broker
}

// Router supervises the worker pool: it spawns workers, allocates
// environment ids, dispatches operations to the owning worker, enforces
// timeouts, and joins everything on shutdown.
//
// Routing is by residue: environment e lives on worker e mod P, for the
// lifetime of the environment. Ids are never recycled, so the mapping is
// stable even when a create fails after allocation.
type Router struct {
	parallel       int
	spawner        Spawner
	ipcTimeout     time.Duration
	startupTimeout time.Duration
	broker         *events.Broker
	logger         zerolog.Logger

	idMu   sync.Mutex
	nextID int

	// handles is written at startup and cleared at shutdown; reads in the
	// request path see a fixed slice.
	handles []*workerHandle
}

// NewRouter creates a Router. Workers are not started until StartWorkers.
func NewRouter(cfg Config) (*Router, error) {
	if cfg.ParallelActor <= 0 {
		return nil, fmt.Errorf("parallel actor count must be positive, got %d", cfg.ParallelActor)
	}
	if cfg.Spawner == nil {
		return nil, fmt.Errorf("spawner is required")
	}
	if cfg.IPCTimeout <= 0 {
		cfg.IPCTimeout = DefaultIPCTimeout
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}

	return &Router{
		parallel:       cfg.ParallelActor,
		spawner:        cfg.Spawner,
		ipcTimeout:     cfg.IPCTimeout,
		startupTimeout: cfg.StartupTimeout,
		broker:         cfg.Broker,
		logger:         log.WithComponent("router"),
	}, nil
}

// StartWorkers spawns the P workers and waits for each readiness ack. Any
// worker that fails readiness is killed and startup fails as a whole; the
// already-started workers are torn down.
func (r *Router) StartWorkers() error {
	if r.handles != nil {
		return fmt.Errorf("workers already started")
	}

	handles := make([]*workerHandle, 0, r.parallel)
	for workerID := 0; workerID < r.parallel; workerID++ {
		handle, err := r.startWorker(workerID)
		if err != nil {
			for _, h := range handles {
				_ = h.proc.Kill()
				_ = h.conn.Close()
			}
			return fmt.Errorf("worker %d: %w", workerID, err)
		}
		handles = append(handles, handle)
	}

	r.handles = handles
	metrics.WorkersAlive.Set(float64(r.parallel))
	r.logger.Info().Int("workers", r.parallel).Msg("all workers ready")
	return nil
}

func (r *Router) startWorker(workerID int) (*workerHandle, error) {
	proc, err := r.spawner.Spawn(workerID, r.parallel)
	if err != nil {
		return nil, fmt.Errorf("spawn failed: %w", err)
	}

	handle := newWorkerHandle(workerID, proc, log.WithWorkerID(workerID))

	select {
	case resp, ok := <-handle.respCh:
		if !ok {
			_ = proc.Kill()
			return nil, fmt.Errorf("pipe closed before readiness")
		}
		if resp.RequestID != ipc.InitRequestID {
			_ = proc.Kill()
			return nil, fmt.Errorf("unexpected first response %q", resp.RequestID)
		}
		if !resp.Success {
			_ = proc.Kill()
			return nil, fmt.Errorf("init failed: %s", resp.ErrorMessage)
		}
	case <-time.After(r.startupTimeout):
		_ = proc.Kill()
		return nil, fmt.Errorf("did not become ready in %s", r.startupTimeout)
	}

	r.logger.Info().Int("worker_id", workerID).Msg("worker started")
	r.publish(&events.Event{Type: events.EventWorkerStarted, WorkerID: workerID})
	return handle, nil
}

// route computes the owning worker for an environment id.
func (r *Router) route(envID types.EnvID) types.WorkerID {
	return envID % r.parallel
}

// Create allocates the next environment id and binds an instance on the
// owning worker. The id is consumed even when the worker errors, so the
// routing invariant holds without a reservation protocol.
func (r *Router) Create(ctx context.Context) (types.EnvID, error) {
	r.idMu.Lock()
	envID := r.nextID
	r.nextID++
	r.idMu.Unlock()

	req := ipc.Request{
		RequestID: uuid.NewString(),
		Command:   ipc.CommandCreate,
		EnvID:     envID,
	}
	resp, err := r.send(ctx, r.route(envID), req)
	if err != nil {
		return 0, err
	}

	metrics.EnvironmentsCreated.Inc()
	metrics.EnvironmentsActive.Inc()
	r.publish(&events.Event{Type: events.EventEnvCreated, EnvID: envID, WorkerID: r.route(envID)})
	r.logger.Debug().Int("env_id", envID).Int("worker_id", r.route(envID)).Msg("environment created")

	var created types.CreateResult
	if err := resp.DecodePayload(&created); err != nil {
		return 0, types.ErrInternal(fmt.Errorf("bad create payload: %w", err))
	}
	return created.EnvID, nil
}

// Step advances environment envID by one action.
func (r *Router) Step(ctx context.Context, envID types.EnvID, action string) (*types.StepResult, error) {
	if err := r.checkEnvID(envID); err != nil {
		return nil, err
	}
	if action == "" {
		return nil, types.NewErrorf(types.CodeInvalidAction, "action must not be empty")
	}

	req := ipc.Request{
		RequestID: uuid.NewString(),
		Command:   ipc.CommandStep,
		EnvID:     envID,
		Action:    action,
	}
	resp, err := r.send(ctx, r.route(envID), req)
	if err != nil {
		return nil, err
	}

	var result types.StepResult
	if err := resp.DecodePayload(&result); err != nil {
		return nil, types.ErrInternal(fmt.Errorf("bad step payload: %w", err))
	}
	if result.Done {
		r.publish(&events.Event{Type: events.EventEnvFinished, EnvID: envID, WorkerID: r.route(envID)})
	}
	return &result, nil
}

// Reset (re)initializes environment envID. Options are forwarded to the
// adapter verbatim; the payload is adapter-defined.
func (r *Router) Reset(ctx context.Context, envID types.EnvID, options types.ResetOptions) (map[string]any, error) {
	if err := r.checkEnvID(envID); err != nil {
		return nil, err
	}

	req := ipc.Request{
		RequestID: uuid.NewString(),
		Command:   ipc.CommandReset,
		EnvID:     envID,
		Params:    options,
	}
	resp, err := r.send(ctx, r.route(envID), req)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := resp.DecodePayload(&payload); err != nil {
		return nil, types.ErrInternal(fmt.Errorf("bad reset payload: %w", err))
	}
	r.publish(&events.Event{Type: events.EventEnvReset, EnvID: envID, WorkerID: r.route(envID)})
	return payload, nil
}

// Close releases environment envID.
func (r *Router) Close(ctx context.Context, envID types.EnvID) (bool, error) {
	if err := r.checkEnvID(envID); err != nil {
		return false, err
	}

	req := ipc.Request{
		RequestID: uuid.NewString(),
		Command:   ipc.CommandClose,
		EnvID:     envID,
	}
	resp, err := r.send(ctx, r.route(envID), req)
	if err != nil {
		return false, err
	}

	var closed bool
	if err := resp.DecodePayload(&closed); err != nil {
		return false, types.ErrInternal(fmt.Errorf("bad close payload: %w", err))
	}

	metrics.EnvironmentsActive.Dec()
	r.publish(&events.Event{Type: events.EventEnvClosed, EnvID: envID, WorkerID: r.route(envID)})
	return closed, nil
}

// Ping probes one worker end to end through its pipe.
func (r *Router) Ping(ctx context.Context, workerID types.WorkerID) error {
	if workerID < 0 || workerID >= r.parallel {
		return fmt.Errorf("worker id %d out of range [0, %d)", workerID, r.parallel)
	}

	req := ipc.Request{
		RequestID: uuid.NewString(),
		Command:   ipc.CommandPing,
		EnvID:     ipc.NoEnvID,
	}
	resp, err := r.send(ctx, workerID, req)
	if err != nil {
		return err
	}

	var pong string
	if err := resp.DecodePayload(&pong); err != nil || pong != "pong" {
		return types.NewErrorf(types.CodeInternalError, "worker %d sent bad ping reply", workerID)
	}
	return nil
}

// PoolHealth summarizes worker liveness.
type PoolHealth struct {
	Workers int `json:"workers"`
	Alive   int `json:"alive"`
}

// Health reports pool width and currently-live workers. It does not touch
// the pipes; the monitor keeps liveness fresh.
func (r *Router) Health() PoolHealth {
	health := PoolHealth{Workers: r.parallel}
	for _, h := range r.handles {
		if h.available() {
			health.Alive++
		}
	}
	return health
}

// ParallelActor returns the pool width P.
func (r *Router) ParallelActor() int { return r.parallel }

// Shutdown sends SHUTDOWN to every worker best effort, joins each within
// the grace period, kills survivors, and closes the pipes.
func (r *Router) Shutdown() error {
	handles := r.handles
	if handles == nil {
		return nil
	}

	r.publish(&events.Event{Type: events.EventPoolShutdown})

	for _, h := range handles {
		req := ipc.Request{
			RequestID: uuid.NewString(),
			Command:   ipc.CommandShutdown,
			EnvID:     ipc.NoEnvID,
		}
		if err := h.sendOnly(req); err != nil {
			r.logger.Warn().Err(err).Int("worker_id", h.id).Msg("failed to send shutdown")
		}
	}

	for _, h := range handles {
		if err := h.proc.Wait(shutdownGrace); err != nil {
			r.logger.Warn().Int("worker_id", h.id).Msg("worker did not exit, killing")
			_ = h.proc.Kill()
			if err := h.proc.Wait(killGrace); err != nil {
				r.logger.Error().Int("worker_id", h.id).Msg("worker survived kill")
			}
		}
		_ = h.conn.Close()
		r.publish(&events.Event{Type: events.EventWorkerExited, WorkerID: h.id})
	}

	r.handles = nil
	metrics.WorkersAlive.Set(0)
	r.logger.Info().Msg("all workers shut down")
	return nil
}

// send routes one request to a worker and maps transport failures and
// error responses onto the taxonomy.
func (r *Router) send(ctx context.Context, workerID types.WorkerID, req ipc.Request) (ipc.Response, error) {
	if r.handles == nil {
		return ipc.Response{}, types.ErrEnvNotReady("worker pool is not running")
	}
	handle := r.handles[workerID]

	resp, err := handle.call(ctx, req, r.ipcTimeout)
	if err != nil {
		metrics.IPCRequestsTotal.WithLabelValues(string(req.Command), "transport_error").Inc()
		return ipc.Response{}, err
	}
	if !resp.Success {
		metrics.IPCRequestsTotal.WithLabelValues(string(req.Command), "env_error").Inc()
		return ipc.Response{}, resp.Err()
	}

	metrics.IPCRequestsTotal.WithLabelValues(string(req.Command), "ok").Inc()
	return resp, nil
}

func (r *Router) checkEnvID(envID types.EnvID) error {
	if envID < 0 {
		return types.ErrEnvNotFound(envID)
	}
	r.idMu.Lock()
	allocated := r.nextID
	r.idMu.Unlock()
	if envID >= allocated {
		return types.ErrEnvNotFound(envID)
	}
	return nil
}

func (r *Router) publish(event *events.Event) {
	if r.broker != nil {
		r.broker.Publish(event)
	}
}
