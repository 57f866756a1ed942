package worker

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/brick-pid/simplegym/pkg/envs/mockenv"
	"github.com/brick-pid/simplegym/pkg/ipc"
	"github.com/brick-pid/simplegym/pkg/types"
	"github.com/brick-pid/simplegym/pkg/wrapper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWorker runs a worker serve loop over an in-memory pipe and returns
// the router-side conn plus the Serve result channel.
func startWorker(t *testing.T, factory wrapper.Factory) (*ipc.Conn, chan error) {
	t.Helper()
	routerSide, workerSide := net.Pipe()
	t.Cleanup(func() { routerSide.Close() })

	w := New(workerSide, 0, 1, factory, wrapper.Config{})
	done := make(chan error, 1)
	go func() { done <- w.Serve() }()

	return ipc.NewConn(routerSide), done
}

func mockFactory(cfg wrapper.Config) (wrapper.EnvWrapper, error) {
	return mockenv.New(cfg)
}

func awaitInit(t *testing.T, conn *ipc.Conn) {
	t.Helper()
	resp, err := conn.ReadResponse()
	require.NoError(t, err)
	require.Equal(t, ipc.InitRequestID, resp.RequestID)
	require.True(t, resp.Success)
}

func roundTrip(t *testing.T, conn *ipc.Conn, req ipc.Request) ipc.Response {
	t.Helper()
	require.NoError(t, conn.WriteRequest(req))
	resp, err := conn.ReadResponse()
	require.NoError(t, err)
	require.Equal(t, req.RequestID, resp.RequestID)
	return resp
}

func TestInitHandshakeSuccess(t *testing.T) {
	conn, done := startWorker(t, mockFactory)
	awaitInit(t, conn)

	require.NoError(t, conn.Close())
	require.NoError(t, <-done)
}

func TestInitHandshakeFailure(t *testing.T) {
	conn, done := startWorker(t, func(cfg wrapper.Config) (wrapper.EnvWrapper, error) {
		return nil, fmt.Errorf("no simulator data found")
	})

	resp, err := conn.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, ipc.InitRequestID, resp.RequestID)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "no simulator data")

	err = <-done
	require.Error(t, err)
}

func TestServeDispatch(t *testing.T) {
	conn, done := startWorker(t, mockFactory)
	awaitInit(t, conn)

	// CREATE binds the pre-assigned id.
	resp := roundTrip(t, conn, ipc.Request{RequestID: "c1", Command: ipc.CommandCreate, EnvID: 0})
	require.True(t, resp.Success)
	var created types.CreateResult
	require.NoError(t, resp.DecodePayload(&created))
	assert.Equal(t, 0, created.EnvID)

	// RESET forwards params verbatim.
	resp = roundTrip(t, conn, ipc.Request{
		RequestID: "r1", Command: ipc.CommandReset, EnvID: 0,
		Params: types.ResetOptions{"task_id": float64(0), "world_type": "Text"},
	})
	require.True(t, resp.Success)
	var reset map[string]any
	require.NoError(t, resp.DecodePayload(&reset))
	assert.NotEmpty(t, reset["observation"])

	// STEP returns the standard payload shape.
	resp = roundTrip(t, conn, ipc.Request{RequestID: "s1", Command: ipc.CommandStep, EnvID: 0, Action: "look"})
	require.True(t, resp.Success)
	var step types.StepResult
	require.NoError(t, resp.DecodePayload(&step))
	assert.NotEmpty(t, step.Observation)
	assert.False(t, step.Done)

	// Typed errors keep their code across the pipe.
	resp = roundTrip(t, conn, ipc.Request{RequestID: "s2", Command: ipc.CommandStep, EnvID: 42, Action: "look"})
	require.False(t, resp.Success)
	assert.Equal(t, string(types.CodeEnvNotFound), resp.ErrorCode)

	// PING answers pong.
	resp = roundTrip(t, conn, ipc.Request{RequestID: "p1", Command: ipc.CommandPing, EnvID: ipc.NoEnvID})
	require.True(t, resp.Success)
	var pong string
	require.NoError(t, resp.DecodePayload(&pong))
	assert.Equal(t, "pong", pong)

	// CLOSE returns a boolean payload.
	resp = roundTrip(t, conn, ipc.Request{RequestID: "x1", Command: ipc.CommandClose, EnvID: 0})
	require.True(t, resp.Success)
	var closed bool
	require.NoError(t, resp.DecodePayload(&closed))
	assert.True(t, closed)

	require.NoError(t, conn.Close())
	require.NoError(t, <-done)
}

func TestUnknownCommandIsInternalError(t *testing.T) {
	conn, done := startWorker(t, mockFactory)
	awaitInit(t, conn)

	resp := roundTrip(t, conn, ipc.Request{RequestID: "u1", Command: ipc.Command("FROBNICATE")})
	require.False(t, resp.Success)
	assert.Equal(t, string(types.CodeInternalError), resp.ErrorCode)

	require.NoError(t, conn.Close())
	require.NoError(t, <-done)
}

func TestResponsesAreFIFO(t *testing.T) {
	conn, done := startWorker(t, mockFactory)
	awaitInit(t, conn)

	// net.Pipe is unbuffered, so writes and reads must interleave from a
	// second goroutine; order of responses must match order of requests.
	ids := []string{"f1", "f2", "f3", "f4"}
	go func() {
		for i, id := range ids {
			_ = conn.WriteRequest(ipc.Request{RequestID: id, Command: ipc.CommandCreate, EnvID: i})
		}
	}()

	for _, id := range ids {
		resp, err := conn.ReadResponse()
		require.NoError(t, err)
		assert.Equal(t, id, resp.RequestID)
	}

	require.NoError(t, conn.Close())
	require.NoError(t, <-done)
}

func TestShutdownDrainsLiveEnvironments(t *testing.T) {
	env, err := mockenv.New(wrapper.Config{})
	require.NoError(t, err)

	conn, done := startWorker(t, func(wrapper.Config) (wrapper.EnvWrapper, error) {
		return env, nil
	})
	awaitInit(t, conn)

	for i := 0; i < 3; i++ {
		resp := roundTrip(t, conn, ipc.Request{
			RequestID: fmt.Sprintf("c%d", i), Command: ipc.CommandCreate, EnvID: i,
		})
		require.True(t, resp.Success)
	}

	resp := roundTrip(t, conn, ipc.Request{RequestID: "sd", Command: ipc.CommandShutdown, EnvID: ipc.NoEnvID})
	require.True(t, resp.Success)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after shutdown")
	}

	assert.Empty(t, env.Live())
}

func TestUntypedWrapperErrorFlattensToInternal(t *testing.T) {
	// Wrapper errors that are not EnvError flatten to INTERNAL_ERROR with
	// the original message preserved.
	conn, done := startWorker(t, func(wrapper.Config) (wrapper.EnvWrapper, error) {
		return &failingWrapper{}, nil
	})
	awaitInit(t, conn)

	resp := roundTrip(t, conn, ipc.Request{RequestID: "e1", Command: ipc.CommandStep, EnvID: 0, Action: "look"})
	require.False(t, resp.Success)
	assert.Equal(t, string(types.CodeInternalError), resp.ErrorCode)
	assert.Contains(t, resp.ErrorMessage, "simulator exploded")

	require.NoError(t, conn.Close())
	require.NoError(t, <-done)
}

type failingWrapper struct{}

func (f *failingWrapper) CreateWithID(envID types.EnvID) (any, error) {
	return nil, errors.New("simulator exploded")
}

func (f *failingWrapper) Step(envID types.EnvID, action string) (any, error) {
	return nil, errors.New("simulator exploded")
}

func (f *failingWrapper) Reset(envID types.EnvID, options types.ResetOptions) (any, error) {
	return nil, errors.New("simulator exploded")
}

func (f *failingWrapper) Close(envID types.EnvID) (bool, error) {
	return false, errors.New("simulator exploded")
}

func (f *failingWrapper) Live() []types.EnvID { return nil }
