package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/clv-retention/pkg/config"
	"github.com/wonny/clv-retention/pkg/logger"
)

// ServiceName is reported by /health and tagged on the server's log lines
const ServiceName = "clv-retention-api"

// Sweeps over a large partition re-rank every customer once per weight,
// so writes get more room than reads.
const (
	readTimeout       = 15 * time.Second
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server serves the read-only prediction and decisioning API
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	config     *config.Config
}

// New creates a new API server listening on cfg.Port
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
		logger: log.WithField("service", ServiceName),
		config: cfg,
	}
}

// Addr is the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until Shutdown. A graceful shutdown is not an error.
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"addr":        s.httpServer.Addr,
		"env":         s.config.Env,
		"reports_dir": s.config.Paths.ReportsDir,
		"params_file": s.config.Paths.ParamsFile,
	}).Info("Serving retention API")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve %s: %w", s.httpServer.Addr, err)
	}

	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Draining retention API")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown %s: %w", s.httpServer.Addr, err)
	}

	return nil
}
