// Package api is the HTTP surface of the PDF chatbot service.
//
// Routes:
//
//	GET  /                              service banner
//	GET  /health                        liveness probe
//	GET  /ready                         readiness probe (database ping)
//	POST /api/chat/stream               SSE chat stream
//	POST /api/chat                      alias of /api/chat/stream
//	POST /api/upload/pdf                PDF upload
//	GET  /api/upload/status/{file_id}   upload status lookup
//	GET  /api/upload/list               all uploads
//
// File structure:
//   - server.go: route table, middleware stack, server lifecycle
//   - middleware.go: recovery, request logging, CORS
//   - ratelimit.go: per-IP token bucket
//   - chat.go: SSE stream relay
//   - upload.go: upload endpoints
//   - health.go: probes and banner
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pdfbot/pdfbot/internal/agent"
	"github.com/pdfbot/pdfbot/internal/ingest"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Source      agent.FragmentSource // Optional: nil makes chat return 500
	Ingest      *ingest.Service      // Required
	Pool        *pgxpool.Pool        // Optional: nil makes /ready return 503
	ServiceName string
	CORSOrigins []string // Allowed origins; "*" allows any
	TrustProxy  bool     // Trust X-Real-IP/X-Forwarded-For headers
	RatePerSec  float64  // Rate limiter refill per IP (0 = default 5)
	RateBurst   int      // Rate limiter burst per IP (0 = default 20)
}

// Server is the chatbot HTTP server.
type Server struct {
	handler http.Handler
	logger  *slog.Logger
}

// NewServer creates a server with all routes and middleware configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Ingest == nil {
		return nil, errors.New("ingest service is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pdfbot"
	}

	ch := &chatHandler{source: cfg.Source, logger: logger}
	uh := &uploadHandler{service: cfg.Ingest, logger: logger}
	hh := &healthHandler{serviceName: serviceName, pool: cfg.Pool, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", hh.root)
	mux.HandleFunc("GET /health", hh.health)
	mux.HandleFunc("GET /ready", hh.ready)

	mux.HandleFunc("POST /api/chat/stream", ch.stream)
	mux.HandleFunc("POST /api/chat", ch.stream)

	mux.HandleFunc("POST /api/upload/pdf", uh.uploadPDF)
	mux.HandleFunc("GET /api/upload/status/{file_id}", uh.uploadStatus)
	mux.HandleFunc("GET /api/upload/list", uh.uploadList)

	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}
	rl := newRateLimiter(perSec, burst)

	// Middleware stack, outermost first:
	//   Recovery -> Logging -> CORS -> RateLimit -> Routes
	// CORS sits before RateLimit so preflight OPTIONS always gets headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{handler: handler, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
// WriteTimeout is left unset because SSE responses are open-ended; slow-client
// protection comes from ReadHeaderTimeout and per-request contexts.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}
