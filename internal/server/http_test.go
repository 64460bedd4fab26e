package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *procenv.Env) {
	t.Helper()
	reg := prometheus.NewRegistry()
	env, err := procenv.New(procenv.Config{Registerer: reg})
	require.NoError(t, err)
	return New(Config{Addr: "127.0.0.1:0"}, env, reg), env
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNew_FillsZeroTimeouts(t *testing.T) {
	def := DefaultConfig()
	s := New(Config{Addr: "127.0.0.1:0"}, nil, prometheus.NewRegistry())

	assert.Equal(t, "127.0.0.1:0", s.httpServer.Addr)
	assert.Equal(t, def.ReadTimeout, s.httpServer.ReadTimeout)
	assert.Equal(t, def.WriteTimeout, s.httpServer.WriteTimeout)
	assert.Equal(t, def.IdleTimeout, s.httpServer.IdleTimeout)
	assert.Equal(t, def.ShutdownTimeout, s.config.ShutdownTimeout)
}

func TestNew_KeepsExplicitTimeouts(t *testing.T) {
	s := New(Config{ReadTimeout: time.Second, IdleTimeout: 3 * time.Second}, nil, prometheus.NewRegistry())

	assert.Equal(t, DefaultConfig().Addr, s.httpServer.Addr)
	assert.Equal(t, time.Second, s.httpServer.ReadTimeout)
	assert.Equal(t, DefaultConfig().WriteTimeout, s.httpServer.WriteTimeout)
	assert.Equal(t, 3*time.Second, s.httpServer.IdleTimeout)
}

func TestHealth_ReportsResources(t *testing.T) {
	s, env := newTestServer(t)
	env.HandleOpened()
	env.HandleOpened()
	env.MappingAdded()

	rec := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp types.HealthResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(2), resp.Handles)
	assert.Equal(t, int64(1), resp.Mappings)
	assert.NotZero(t, resp.PID)
}

func TestMetrics_ExposesRegistry(t *testing.T) {
	s, env := newTestServer(t)
	env.HandleOpened()

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "xproc_shm_handles_open 1")
}

func TestLayout(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s.Handler(), "/layout")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "semaphoreData")
	assert.Contains(t, rec.Body.String(), "Fingerprint")
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_BadAddress(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(Config{Addr: "256.0.0.1:bad"}, nil, reg)
	assert.Error(t, s.Run(context.Background()))
}
