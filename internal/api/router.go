// Package api exposes the read-only feed over HTTP.
package api

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/d60-Lab/district-feed/config"
	_ "github.com/d60-Lab/district-feed/docs"
	"github.com/d60-Lab/district-feed/internal/api/handler"
	"github.com/d60-Lab/district-feed/internal/api/middleware"
	"github.com/d60-Lab/district-feed/pkg/logger"
)

// NewRouter 组装中间件与路由
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(accessLog())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/media/"})))

	r.GET("/health", h.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	{
		apiGroup.GET("/posts", h.ListPosts)
		apiGroup.GET("/media/:id", h.Media)
	}
	return r
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		)
	}
}
