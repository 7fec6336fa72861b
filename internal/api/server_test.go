package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dialer/internal/queue"
	"github.com/ignite/dialer/internal/worker"
)

func setupServer(t *testing.T) *chiServer {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := queue.New(client)
	orch := worker.NewOrchestrator(nil, q, nil, nil, worker.OrchestratorConfig{})
	h := NewHandlers(orch, q)
	return &chiServer{mux: SetupRoutes(h), q: q}
}

type chiServer struct {
	mux http.Handler
	q   *queue.Queue
}

func (s *chiServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := setupServer(t)

	rec := s.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusStopped(t *testing.T) {
	s := setupServer(t)

	rec := s.get(t, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "stopped", body.Status)
	assert.False(t, body.Orchestrator.Running)
	assert.Contains(t, body.Breakers, "store")
	assert.Contains(t, body.Breakers, "queue")
	assert.Contains(t, body.Breakers, "call-execution")
	for _, state := range body.Breakers {
		assert.Equal(t, "closed", state)
	}
}

func TestStatusListsLiveWorkers(t *testing.T) {
	s := setupServer(t)
	require.NoError(t, s.q.Heartbeat(context.Background(), "worker-a"))

	rec := s.get(t, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.LiveWorkers, "worker-a")
}
