package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(handler *handlers.SessionHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	api := r.Group("/api")
	api.GET("/health", handler.Health)
	api.POST("/upload", handler.Upload)
	api.POST("/process", handler.Process)
	api.GET("/download/:kind/:id", handler.Download)

	sessions := api.Group("/sessions")
	sessions.GET("", handler.List)
	sessions.GET("/:id", handler.Get)
	sessions.DELETE("/:id", handler.Delete)
	sessions.GET("/:id/distribution", handler.Distribution)
	sessions.GET("/:id/runs", handler.Runs)
	sessions.POST("/:id/redistribute", handler.Redistribute)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
