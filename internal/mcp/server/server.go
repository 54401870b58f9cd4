package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/mcp-llm-bridge/internal/metrics"
	sqltools "github.com/malbeclabs/mcp-llm-bridge/internal/tools/sql"
)

const Name = "mcp-llm-bridge"

type Server struct {
	log     *slog.Logger
	cfg     Config
	mcp     *mcp.Server
	handler http.Handler
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
		mcp: mcpServer,
	}

	queryTool, err := sqltools.NewQueryTool(sqltools.QueryToolConfig{
		Logger:   cfg.Logger,
		DB:       cfg.DB,
		Registry: cfg.Registry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create query tool: %w", err)
	}
	if err := queryTool.Register(mcpServer); err != nil {
		return nil, fmt.Errorf("failed to register query tool: %w", err)
	}

	mux := http.NewServeMux()
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{
		Stateless: true,
	})
	mux.Handle("/", s.metricsMiddleware(handler))
	mux.Handle("/healthz", s.metricsMiddleware(http.HandlerFunc(s.healthzHandler)))
	s.handler = mux

	return s, nil
}

func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves over stdio, or over streamable HTTP when a listen address is
// configured, until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.ListenAddr == "" {
		return s.runStdio(ctx)
	}
	return s.runHTTP(ctx)
}

func (s *Server) runStdio(ctx context.Context) error {
	s.log.Info("mcp/server: serving over stdio")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to run stdio server: %w", err)
	}
	s.log.Info("mcp/server: stdio server stopped")
	return nil
}

func (s *Server) runHTTP(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("mcp/server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("mcp/server: streamable http listening", "listenAddr", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("mcp/server: stopping", "reason", ctx.Err(), "listenAddr", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("mcp/server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		return err
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("mcp/server: failed to write healthz response", "error", err)
	}
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := fmt.Sprintf("%d", wrapped.statusCode)
		metrics.MCPHTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.MCPHTTPRequestDuration.Observe(time.Since(startTime).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
