package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ShopPilot/pkg/apperror"
	"ShopPilot/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServerConfig listener settings
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Production   bool
}

// Server API server
type Server struct {
	router *gin.Engine
	srv    *http.Server
}

// NewServer router with recovery, request logging and error rendering
func NewServer(cfg ServerConfig) *Server {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(logger.RequestLogger())
	router.Use(apperror.ErrorMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		router: router,
		srv:    srv,
	}
}

// SetupRoutes registers every route of h
func (s *Server) SetupRoutes(h *Handlers) {
	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/ready", h.ReadinessCheck)
	if h.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(h.metrics))
	}

	v1 := s.router.Group("/api/v1", RequireOrg())
	{
		v1.GET("/jobs", h.ListJobs)
		v1.POST("/jobs", h.SubmitJob)
		v1.POST("/jobs/preview", h.PreviewJob)
		v1.GET("/jobs/:id", h.GetJob)
		v1.PATCH("/jobs/:id", h.ControlJob)

		v1.GET("/settings/fulfillment", h.GetSettings)
		v1.POST("/settings/fulfillment", h.SaveSettings)

		v1.GET("/mappings", h.ListMappings)
		v1.POST("/mappings", h.CreateMapping)
		v1.GET("/mappings/:id", h.GetMapping)
		v1.PUT("/mappings/:id", h.UpdateMapping)
		v1.DELETE("/mappings/:id", h.DeleteMapping)

		v1.GET("/rules", h.ListRules)
		v1.POST("/rules", h.CreateRule)
		v1.GET("/rules/:id", h.GetRule)
		v1.PUT("/rules/:id", h.UpdateRule)
		v1.DELETE("/rules/:id", h.DeleteRule)
		v1.GET("/rules/:id/executions", h.ListRuleExecutions)

		v1.GET("/executions", h.ListExecutions)
		v1.POST("/events", h.IngestEvent)
	}
}

// Handler the root handler, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("API server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Log.Info("API server stopped")
	return nil
}
