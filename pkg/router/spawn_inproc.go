package router

import (
	"io"
	"net"
	"time"

	"github.com/brick-pid/simplegym/pkg/worker"
	"github.com/brick-pid/simplegym/pkg/wrapper"
)

// InprocSpawner runs workers as goroutines in the router's own process,
// connected over in-memory pipes. It keeps the full IPC protocol and the
// serial-loop guarantee but gives up process isolation, so a simulator
// that corrupts process-global state can take the whole pool with it.
// Intended for embedded single-process deployments and tests.
type InprocSpawner struct {
	Factory wrapper.Factory
	Config  wrapper.Config
}

// Spawn starts one in-process worker.
func (s *InprocSpawner) Spawn(workerID, parallel int) (Process, error) {
	routerEnd, workerEnd := net.Pipe()

	p := &inprocProcess{
		pipe:      routerEnd,
		workerEnd: workerEnd,
		done:      make(chan struct{}),
	}

	w := worker.New(workerEnd, workerID, parallel, s.Factory, s.Config)
	go func() {
		defer close(p.done)
		defer workerEnd.Close()
		_ = w.Serve()
	}()

	return p, nil
}

type inprocProcess struct {
	pipe      io.ReadWriteCloser
	workerEnd io.Closer
	done      chan struct{}
}

func (p *inprocProcess) Pipe() io.ReadWriteCloser { return p.pipe }

func (p *inprocProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Kill closes the worker's end of the pipe, which ends its serve loop.
func (p *inprocProcess) Kill() error {
	return p.workerEnd.Close()
}

func (p *inprocProcess) Wait(timeout time.Duration) error {
	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		return errStillRunning
	}
}

var errStillRunning = &stillRunningError{}

type stillRunningError struct{}

func (*stillRunningError) Error() string { return "worker goroutine still running" }
