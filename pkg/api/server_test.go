package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brick-pid/simplegym/pkg/envs/mockenv"
	"github.com/brick-pid/simplegym/pkg/events"
	"github.com/brick-pid/simplegym/pkg/router"
	"github.com/brick-pid/simplegym/pkg/wrapper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, parallel int) (*httptest.Server, *events.Broker) {
	t.Helper()

	broker := events.NewBroker()
	broker.Start()

	r, err := router.NewRouter(router.Config{
		ParallelActor: parallel,
		Broker:        broker,
		Spawner: &router.InprocSpawner{
			Factory: func(cfg wrapper.Config) (wrapper.EnvWrapper, error) {
				return mockenv.New(cfg)
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.StartWorkers())

	ts := httptest.NewServer(NewServer(r, broker).Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = r.Shutdown()
		broker.Stop()
	})
	return ts, broker
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}

	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, 2)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["workers"])
	assert.Equal(t, float64(2), body["alive"])
}

func TestEpisodeOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, 2)

	resp, created := postJSON(t, ts.URL+"/create", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	envID := int(created["env_id"].(float64))
	assert.Equal(t, 0, envID)

	resp, reset := postJSON(t, ts.URL+"/reset", map[string]any{
		"env_id": envID, "task_id": 0, "world_type": "Text",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, reset["observation"])
	assert.NotEmpty(t, reset["available_actions"])

	resp, step := postJSON(t, ts.URL+"/step", map[string]any{
		"env_id": envID, "action": "look",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, step, "observation")
	assert.Contains(t, step, "reward")
	assert.Contains(t, step, "done")
	assert.Contains(t, step, "info")
	assert.IsType(t, false, step["done"])

	// close returns a bare boolean
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{"env_id": envID}))
	closeResp, err := http.Post(ts.URL+"/close", "application/json", &buf)
	require.NoError(t, err)
	defer closeResp.Body.Close()
	require.Equal(t, http.StatusOK, closeResp.StatusCode)
	var closed bool
	require.NoError(t, json.NewDecoder(closeResp.Body).Decode(&closed))
	assert.True(t, closed)

	resp, failure := postJSON(t, ts.URL+"/close", map[string]any{"env_id": envID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := failure["error"].(map[string]any)
	assert.Equal(t, "ENV_CLOSED", errBody["code"])
	assert.Equal(t, false, errBody["retryable"])
	assert.Contains(t, errBody, "details")
}

func TestErrorShapes(t *testing.T) {
	ts, _ := newTestServer(t, 2)

	tests := []struct {
		name       string
		path       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "step unknown env",
			path:       "/step",
			body:       map[string]any{"env_id": 99, "action": "look"},
			wantStatus: http.StatusNotFound,
			wantCode:   "ENV_NOT_FOUND",
		},
		{
			name:       "step missing env_id",
			path:       "/step",
			body:       map[string]any{"action": "look"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ACTION",
		},
		{
			name:       "reset missing env_id",
			path:       "/reset",
			body:       map[string]any{"task_id": 0},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ACTION",
		},
		{
			name:       "close missing env_id",
			path:       "/close",
			body:       map[string]any{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ACTION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postJSON(t, ts.URL+tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			errBody := body["error"].(map[string]any)
			assert.Equal(t, tt.wantCode, errBody["code"])
		})
	}
}

func TestResetOptionsPassThrough(t *testing.T) {
	ts, _ := newTestServer(t, 1)

	_, created := postJSON(t, ts.URL+"/create", nil)
	envID := int(created["env_id"].(float64))

	resp, failure := postJSON(t, ts.URL+"/reset", map[string]any{
		"env_id": envID, "task_id": 0, "world_type": "Martian",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := failure["error"].(map[string]any)
	assert.Equal(t, "INVALID_ACTION", errBody["code"])
	assert.Contains(t, errBody["message"], "world_type")

	resp, failure = postJSON(t, ts.URL+"/reset", map[string]any{
		"env_id": envID, "task_id": 10_000,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody = failure["error"].(map[string]any)
	assert.Equal(t, "TASK_OUT_OF_RANGE", errBody["code"])
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, 1)

	resp, err := http.Get(ts.URL + "/create")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	postResp, err := http.Post(ts.URL+"/health", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer postResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, postResp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, 1)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventsStream(t *testing.T) {
	ts, _ := newTestServer(t, 1)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Trigger an event and expect it on the stream.
	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = postJSON(t, ts.URL+"/create", nil)
	}()

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "env.created")
}
