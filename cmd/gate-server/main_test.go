package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/app"
	"github.com/upb/action-gate/config"
	"go.uber.org/zap/zaptest"
)

func testDeps(t *testing.T) *app.Dependencies {
	t.Helper()
	cfg := &config.Config{
		Environment:    "test",
		StorageBackend: config.BackendMemory,
		Redis:          config.RedisConfig{RetryBackend: config.BackendMemory},
		Oracle:         config.OracleConfig{BaseURL: "http://127.0.0.1:1", Timezone: "UTC", Timeout: time.Second, MaxConcurrency: 1},
		Rules:          config.RulesConfig{CacheSize: 10},
		Actions:        config.ActionsConfig{WeatherURL: "http://127.0.0.1:1", WeatherTimeout: time.Second},
		Audit:          config.AuditConfig{BufferSize: 10, WorkerCount: 1},
	}
	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return deps
}

func TestNewServer(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         9090,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 4 * time.Second,
	}}

	srv := newServer(cfg, http.NotFoundHandler())
	assert.Equal(t, "127.0.0.1:9090", srv.Addr)
	assert.Equal(t, 3*time.Second, srv.ReadTimeout)
	assert.Equal(t, 4*time.Second, srv.WriteTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
}

func TestServe_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	deps := testDeps(t)
	logger := zaptest.NewLogger(t)

	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, srv, srv.ListenAndServe, deps, time.Second, logger)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_TLSMissingCertificate(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	listen := func() error { return srv.ListenAndServeTLS("missing-cert.pem", "missing-key.pem") }

	err := serve(context.Background(), srv, listen, testDeps(t), time.Second, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestServe_ListenError(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1", Handler: http.NotFoundHandler()}

	err := serve(context.Background(), srv, srv.ListenAndServe, testDeps(t), time.Second, zaptest.NewLogger(t))
	assert.Error(t, err)
}
