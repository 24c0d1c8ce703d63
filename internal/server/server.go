package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"spam-moderator/internal/config"
	"spam-moderator/internal/handler"
	"spam-moderator/internal/middleware"
	"spam-moderator/internal/moderation"
)

type Server struct {
	router *gin.Engine
	srv    *http.Server
	log    *zap.Logger
}

func NewServer(cfg *config.Config, moderator *moderation.Moderator, log *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log), middleware.CORS())

	s := &Server{
		router: router,
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
			Handler: router,
		},
		log: log,
	}

	// Setup routes
	auth := middleware.AuthMiddleware([]byte(cfg.Auth.JWTSecret), log)
	handler.NewHandler(moderator, auth, log).RegisterRoutes(router)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run blocks until the server is shut down.
func (s *Server) Run() error {
	s.log.Info("Server starting", zap.String("address", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()))
	}
}
