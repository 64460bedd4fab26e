// internal/server/http.go
// Diagnostics HTTP server with graceful shutdown
//
// LEARN: A long-running tool that owns OS resources should let an operator
// see them without attaching a debugger. This server exposes:
// 1. /metrics: Prometheus exposition of the process registry
// 2. /health: open handles and live mappings as JSON
// 3. /layout: the shared block layout and its fingerprint
//
// It follows the same rules as any production server: timeouts on every
// phase, panic recovery, request logging, and a bounded graceful shutdown.

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/ipcsync"
	"github.com/khaaliswooden-max/xproc/pkg/types"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config holds server configuration.
type Config struct {
	Addr            string        // Listen address (default: "127.0.0.1:9464")
	ReadTimeout     time.Duration // Max time to read request (default: 5s)
	WriteTimeout    time.Duration // Max time to write response (default: 10s)
	IdleTimeout     time.Duration // Max time for keep-alive (default: 60s)
	ShutdownTimeout time.Duration // Max time to wait for graceful shutdown (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:9464",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// withDefaults fills every zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

// Server is the diagnostics HTTP server.
type Server struct {
	config     Config
	httpServer *http.Server
	env        *procenv.Env
	logger     *zap.Logger
}

// New creates a new Server reporting on env and serving gatherer at
// /metrics. A nil gatherer serves the default registry.
func New(cfg Config, env *procenv.Env, gatherer prometheus.Gatherer) *Server {
	cfg = cfg.withDefaults()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	env = procenv.Or(env)

	s := &Server{
		config: cfg,
		env:    env,
		logger: env.Logger.Named("http"),
	}

	// LEARN: Go 1.22+ supports method routing: "GET /path"
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /layout", s.handleLayout)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	var handler http.Handler = mux
	handler = s.recoveryMiddleware(handler)
	handler = s.loggingMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is done, then shuts down gracefully.
//
// LEARN: Listening synchronously before spawning the serve goroutine
// means a bad address is reported to the caller immediately instead of
// being lost in a background goroutine.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving diagnostics", zap.String("addr", ln.Addr().String()), zap.String("version", Version))
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info("diagnostics server stopped")
	return nil
}

// === Middleware ===

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", zap.Any("error", err), zap.String("path", r.URL.Path))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// === Handlers ===

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := s.env.Resources()
	s.writeJSON(w, types.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   Version,
		PID:       os.Getpid(),
		Handles:   res.Handles,
		Mappings:  res.Mappings,
	}, http.StatusOK)
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, ipcsync.BlockLayout().String())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any, status int) {
	body, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
