// Package api provides the HTTP webhook receiver.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/webhook-indexer/internal/dispatch"
	"github.com/webhook-indexer/internal/logging"
	"github.com/webhook-indexer/internal/models"
	"github.com/webhook-indexer/internal/storage"
)

// EventDispatcher fans one parsed event out to matching rules.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *models.WebhookEvent) *dispatch.Summary
}

// EventArchiver stores raw inbound payloads for replay and debugging.
type EventArchiver interface {
	Insert(ctx context.Context, event *storage.ArchivedEvent) error
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	WebhookRPS      int // Requests per second accepted per source address
	WebhookBurst    int
}

// Server represents the HTTP webhook receiver.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	dispatcher EventDispatcher
	archive    EventArchiver // nil when the archive is disabled
	logger     *logging.Logger
	config     *ServerConfig
}

// NewServer creates a new webhook receiver instance.
func NewServer(config *ServerConfig, dispatcher EventDispatcher, archive EventArchiver, logger *logging.Logger) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Server{
		router:     mux.NewRouter(),
		dispatcher: dispatcher,
		archive:    archive,
		logger:     logger,
		config:     config,
	}

	s.setupRouter()

	return s, nil
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.WebhookRPS, s.config.WebhookBurst)

	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/v1/webhooks/helius", s.handleHeliusWebhook).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "webhook-indexer",
	})
}

// Handler returns the root handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting webhook receiver")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down webhook receiver")
	return s.httpServer.Shutdown(ctx)
}
