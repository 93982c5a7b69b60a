// Package server exposes the analysis pipeline and the query layer over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rcliao/commentlens/internal/config"
	"github.com/rcliao/commentlens/internal/persistence"
	"github.com/rcliao/commentlens/internal/pipeline"
	"github.com/rcliao/commentlens/internal/query"
)

// Runner runs one uploaded batch through the pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunResult, error)
}

// Server represents the HTTP server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	db         persistence.Database
	runner     Runner
	queries    *query.Service
	config     config.Server
	log        zerolog.Logger
}

// New creates a new HTTP server instance
func New(db persistence.Database, runner Runner, cfg config.Server, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		db:      db,
		runner:  runner,
		queries: query.New(db),
		config:  cfg,
		log:     log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  config.Duration(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.WriteTimeout, 30*time.Minute),
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())
	s.router.Use(securityHeaders())

	origins := s.config.CORS.AllowedOrigins
	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:       5 * time.Minute,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	s.router.Use(cors.New(corsConfig))
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.GET("/healthcheck", s.handleHealth)
	s.router.POST("/upload", s.handleUpload)

	api := s.router.Group("/api")
	api.Use(noCache())
	{
		api.GET("/analysis_results", s.handleAnalysisResults)
		api.GET("/ai_analysis_comment", s.handleNarrative)
		api.GET("/analysis_sessions", s.handleListSessions)
		api.GET("/time_series_data", s.handleTimeSeries)
		api.GET("/cluster_details/:cluster_id", s.handleClusterDetails)
	}

	// Session charts never change once stored.
	charts := s.router.Group("/api/charts/:session_id")
	charts.Use(cacheImmutable())
	{
		charts.GET("/total.png", s.handleTotalChart)
		charts.GET("/category/:name", s.handleCategoryChart)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().
		Str("addr", s.httpServer.Addr).
		Dur("read_timeout", s.httpServer.ReadTimeout).
		Dur("write_timeout", s.httpServer.WriteTimeout).
		Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info().Msg("HTTP server stopped")
	return nil
}

// Handler returns the router (useful for testing)
func (s *Server) Handler() http.Handler {
	return s.router
}
