package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"nl2sql-tool/internal/config"
	"nl2sql-tool/internal/controller"
	"nl2sql-tool/internal/database"
	"nl2sql-tool/internal/database/metadata"
	"nl2sql-tool/internal/llm"
	"nl2sql-tool/internal/logging"
	"nl2sql-tool/internal/middleware"
	"nl2sql-tool/internal/model"
	"nl2sql-tool/internal/security"
	"nl2sql-tool/internal/service"
)

func main() {
	// A missing .env is fine; the environment and configs/config.yaml still apply.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "console")
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	// Set Gin mode
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database connection
	db, err := config.InitDatabase(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get database handle")
	}
	dbType := model.DatabaseType(cfg.Database.Type)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(registry)

	// Initialize infrastructure
	healthChecker := database.NewHealthChecker(sqlDB, cfg.Database.HealthTimeout)
	introspector := metadata.NewIntrospector(db, dbType, cfg.Schema.SampleRows, log)
	ollama := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL:      cfg.Ollama.BaseURL,
		Model:        cfg.Ollama.Model,
		Timeout:      cfg.Ollama.Timeout,
		ProbeTimeout: cfg.Ollama.ProbeTimeout,
		Temperature:  cfg.Ollama.Temperature,
		TopP:         cfg.Ollama.TopP,
	})
	validator := security.NewSQLValidator(cfg.Query.MaxQueryLength)
	executor := service.NewQueryExecutor(sqlDB, dbType, service.ExecutorOptions{
		Timeout:  cfg.Query.Timeout,
		MaxLimit: cfg.Query.MaxLimit,
	}, metrics, log)

	// Initialize services
	nl2sqlService := service.NewNL2SQLService(service.Dependencies{
		Schema:    introspector,
		Model:     ollama,
		Executor:  executor,
		Probe:     healthChecker,
		Validator: validator,
		Metrics:   metrics,
		Explain:   cfg.Ollama.Explain,
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logStartupConnectivity(ctx, nl2sqlService, cfg, log)
	go service.NewMetricsCollector(healthChecker, metrics, 15*time.Second, log).Run(ctx)

	routerOpts := controller.RouterOptions{
		Service:  nl2sqlService,
		Logger:   log,
		Metrics:  metrics,
		Gatherer: registry,
	}

	// Add rate limiting if enabled
	if cfg.Security.EnableRateLimit {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RPM:             cfg.Security.RateLimitPerMinute,
			Burst:           cfg.Security.RateLimitBurst,
			CleanupInterval: 5 * time.Minute,
		})
		go rateLimiter.Run(ctx)
		routerOpts.RateLimiter = rateLimiter
	}

	if cfg.Security.EnableAuth {
		jwtManager := security.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTExpiration)
		routerOpts.Auth = security.NewAuthMiddleware(jwtManager)
	}

	engine := gin.New()
	controller.SetupRouter(engine, routerOpts)

	router, err := graceful.New(engine,
		graceful.WithAddr(cfg.Server.Addr()),
		graceful.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}
	defer router.Close()

	log.Info().
		Str("addr", cfg.Server.Addr()).
		Str("database_type", cfg.Database.Type).
		Str("model", cfg.Ollama.Model).
		Bool("auth", cfg.Security.EnableAuth).
		Msg("Starting NL2SQL server")

	if err := router.RunWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Server stopped with error")
		closeDatabase(sqlDB.Close, log)
		os.Exit(1)
	}

	log.Info().Msg("Shutting down NL2SQL server")
	closeDatabase(sqlDB.Close, log)
}

// logStartupConnectivity reports both collaborators once. Neither being down
// stops the server.
func logStartupConnectivity(ctx context.Context, svc *service.NL2SQLService, cfg *config.Config, log zerolog.Logger) {
	health := svc.Health(ctx)

	if health.DatabaseConnected {
		log.Info().Str("database_type", cfg.Database.Type).Msg("Database connection established")
	} else {
		log.Warn().Str("database_type", cfg.Database.Type).Msg("Database is not reachable")
	}

	if health.OllamaConnected {
		log.Info().Str("base_url", cfg.Ollama.BaseURL).Msg("Ollama service is reachable")
	} else {
		log.Warn().Str("base_url", cfg.Ollama.BaseURL).Msg("Ollama service is not reachable")
	}
}

func closeDatabase(closeFn func() error, log zerolog.Logger) {
	if err := closeFn(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
		return
	}
	log.Info().Msg("Database connection closed")
}
