package controller

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"nl2sql-tool/internal/middleware"
	"nl2sql-tool/internal/security"
)

// RouterOptions carries everything SetupRouter mounts. Metrics, Gatherer,
// RateLimiter and Auth are optional.
type RouterOptions struct {
	Service     Service
	Logger      zerolog.Logger
	Metrics     *middleware.Metrics
	Gatherer    prometheus.Gatherer
	RateLimiter *middleware.RateLimiter
	Auth        *security.AuthMiddleware
}

// SetupRouter installs middleware and routes on engine. Every route is served
// both at the root and under /api/v1.
func SetupRouter(engine *gin.Engine, opts RouterOptions) {
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.CorrelationIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.CorrelationIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(middleware.CorrelationID())
	engine.Use(middleware.RequestLogger(opts.Logger))
	if opts.Metrics != nil {
		engine.Use(opts.Metrics.Middleware())
	}

	if opts.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	healthController := NewHealthController(opts.Service)
	databaseController := NewDatabaseController(opts.Service, opts.Logger)
	queryController := NewQueryController(opts.Service, opts.Logger)
	modelController := NewModelController(opts.Service)

	for _, group := range []*gin.RouterGroup{engine.Group(""), engine.Group("/api/v1")} {
		// Health check endpoint (always available)
		group.GET("/health", healthController.HealthCheck)

		public := group.Group("")
		if opts.RateLimiter != nil {
			public.Use(opts.RateLimiter.RateLimit())
		}
		{
			public.GET("/schema", databaseController.GetSchema)
			public.GET("/models", modelController.ListModels)
		}

		// Generation and execution endpoints
		protected := public.Group("")
		if opts.Auth != nil {
			protected.Use(opts.Auth.RequireAuth())
		}
		{
			protected.POST("/nl2sql", queryController.Translate)
			protected.POST("/query", queryController.Query)
			protected.POST("/execute-sql", queryController.ExecuteSQL)
		}
	}
}
