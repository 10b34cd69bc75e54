// Package http is the Gin transport: server, router, middleware and handlers.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/reqctx-service/internal/platform/config"
)

// Server owns the Gin engine and the http.Server in front of it.
// Shutdown drains in-flight requests, so their transactions still end and
// run their context end hooks.
type Server struct {
	engine *gin.Engine
	hs     *http.Server
	cfg    *config.ServerConfig
	log    *slog.Logger
}

// New builds the server. Every request body is capped at cfg.MaxRequestSize.
func New(cfg *config.ServerConfig, logger *slog.Logger) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxRequestSize)
	})

	return &Server{
		engine: engine,
		hs: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           engine,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		cfg: cfg,
		log: logger.With(slog.String("component", "http.Server")),
	}
}

// Engine returns the Gin engine routes are registered on.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Config returns the configuration the server was built from.
func (s *Server) Config() *config.ServerConfig { return s.cfg }

// Addr returns host:port the server listens on.
func (s *Server) Addr() string { return s.hs.Addr }

// Start serves in the background. The returned channel yields a listen
// failure, or is closed once the server stops after Shutdown.
func (s *Server) Start() <-chan error {
	done := make(chan error, 1)

	s.log.Info("starting HTTP server",
		slog.String("addr", s.hs.Addr),
		slog.Int64("max_request_size", s.cfg.MaxRequestSize),
	)

	go func() {
		defer close(done)

		if err := s.hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("listening on %s: %w", s.hs.Addr, err)
		}
	}()

	return done
}

// Shutdown stops accepting connections and waits, bounded by ctx, for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("draining in-flight requests")

	if err := s.hs.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.log.Info("HTTP server stopped")

	return nil
}
