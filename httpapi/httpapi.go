// Package httpapi serves the bot's health and statistics over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kabili207/modgate/bot/server"
)

// StatsSource provides the statistics snapshot.
type StatsSource interface {
	Stats() server.Stats
}

// Config configures the status server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr  string
	Stats StatsSource

	// Connected reports the chat transport's state. Optional.
	Connected func() bool

	// Logger for HTTP events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Server is the HTTP status server.
type Server struct {
	cfg    Config
	log    *slog.Logger
	router *gin.Engine
	srv    *http.Server
}

// New builds the router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, log: logger.WithGroup("http"), router: gin.New()}
	s.router.Use(gin.Recovery(), s.logRequests)
	s.router.GET("/healthz", s.health)
	s.router.GET("/stats", s.stats)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	connected := true
	if s.cfg.Connected != nil {
		connected = s.cfg.Connected()
	}
	status := http.StatusOK
	state := "ok"
	if !connected {
		status = http.StatusServiceUnavailable
		state = "disconnected"
	}
	c.JSON(status, gin.H{"status": state})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Stats.Stats())
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}
