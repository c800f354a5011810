// Package relay runs an HTTP endpoint that accepts inbound notification
// requests and forwards them to the configured chat webhook. Inbound
// requests can optionally be authenticated with an HMAC-SHA256 signature
// over the request body.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config configures the relay server. An empty Secret disables inbound
// signature verification.
type Config struct {
	Listen          string
	Secret          string
	SignatureHeader string
	MaxBodySize     int64
}

// Notification is the inbound request body accepted on /notify.
type Notification struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords,omitempty"`
}

// Forwarder delivers an accepted notification to the chat webhook.
type Forwarder interface {
	Forward(ctx context.Context, n Notification) error
}

// ForwarderFunc adapts a function to the Forwarder interface.
type ForwarderFunc func(ctx context.Context, n Notification) error

// Forward implements Forwarder.
func (f ForwarderFunc) Forward(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Server is the relay HTTP server.
type Server struct {
	config    Config
	forwarder Forwarder
	logger    *slog.Logger
	server    *http.Server
}

// New creates a relay server.
func New(config Config, forwarder Forwarder, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		forwarder: forwarder,
		logger:    logger,
	}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("relay server starting",
		"listen", s.config.Listen,
		"signature_required", s.config.Secret != "",
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("relay server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("relay server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("relay server error: %w", err)
	}
}

// Handler builds the HTTP router. Exposed so tests can drive the server
// without binding a socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post("/notify", s.handleNotify)
	r.Get("/healthz", s.handleHealth)

	return r
}

// loggingMiddleware logs requests without body content.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("relay request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	maxBody := s.config.MaxBodySize
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > maxBody {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if s.config.Secret != "" {
		signature := r.Header.Get(s.config.SignatureHeader)
		if err := verifySignature(body, signature, s.config.Secret); err != nil {
			s.logger.Warn("relay signature rejected",
				"header", s.config.SignatureHeader,
				"request_id", middleware.GetReqID(r.Context()),
			)
			// Generic 403, no detail.
			s.respondError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if n.Content == "" {
		s.respondError(w, http.StatusBadRequest, "content is required")
		return
	}

	if err := s.forwarder.Forward(r.Context(), n); err != nil {
		s.logger.Error("relay forward failed", "error", err)
		s.respondError(w, http.StatusBadGateway, "failed to deliver notification")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
