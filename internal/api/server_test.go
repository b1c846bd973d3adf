package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/clv-retention/pkg/config"
	"github.com/wonny/clv-retention/pkg/logger"
)

func TestServerShutdownIsNotAnError(t *testing.T) {
	cfg := &config.Config{Port: "0", Env: "test"}
	s := New(cfg, logger.Nop(), http.NotFoundHandler())
	assert.Equal(t, ":0", s.Addr())
	assert.Equal(t, writeTimeout, s.httpServer.WriteTimeout)
	assert.Equal(t, readHeaderTimeout, s.httpServer.ReadHeaderTimeout)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
