// Package server provides the HTTP API for Tower.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/obro79/Tower/internal/config"
	"github.com/obro79/Tower/internal/ingest"
	"github.com/obro79/Tower/internal/keyword"
	"github.com/obro79/Tower/internal/lifecycle"
	"github.com/obro79/Tower/internal/search"
)

// Server is the HTTP server for the Tower API.
type Server struct {
	aggregator *search.Aggregator
	ingestor   *ingest.Ingestor
	manager    *lifecycle.Manager
	keyword    keyword.Index
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	aggregator *search.Aggregator,
	ingestor *ingest.Ingestor,
	manager *lifecycle.Manager,
	kw keyword.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		aggregator: aggregator,
		ingestor:   ingestor,
		manager:    manager,
		keyword:    kw,
		config:     cfg,
		logger:     logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/embeddings", s.handleIngestText)
	r.Post("/api/v1/embeddings/file", s.handleIngestFile)
	r.Delete("/api/v1/embeddings/{fileID}", s.handleDelete)
	r.Post("/api/v1/search/semantic", s.handleSemanticSearch)
	r.Get("/api/v1/search/keyword", s.handleKeywordSearch)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
