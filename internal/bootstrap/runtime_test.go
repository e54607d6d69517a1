package bootstrap

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

func TestOpenWithoutRedis(t *testing.T) {
	cfg := testConfig()
	cfg.DB = config.DBConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "billing.db")}

	rt, err := Open(context.Background(), cfg, logger.New(logger.Options{ServiceName: "bootstrap-test"}), RuntimeOptions{})
	require.NoError(t, err)
	assert.Nil(t, rt.Redis)
	require.NoError(t, rt.DB.Ping(context.Background()))
	assert.NoError(t, rt.Close())
}

func TestOpenRejectsMissingDSN(t *testing.T) {
	_, err := Open(context.Background(), testConfig(), logger.New(logger.Options{ServiceName: "bootstrap-test"}), RuntimeOptions{WithRedis: true})
	assert.ErrorContains(t, err, "database")
}

func TestRuntimeCloseIsNilSafe(t *testing.T) {
	var rt *Runtime
	assert.NoError(t, rt.Close())
	assert.NoError(t, (&Runtime{}).Close())
}

func TestServeStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, time.Second) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeReportsListenFailure(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1", ReadHeaderTimeout: time.Second}
	assert.Error(t, Serve(context.Background(), srv, time.Second))
}
