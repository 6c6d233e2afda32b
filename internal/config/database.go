package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nl2sql-tool/internal/database"
	"nl2sql-tool/internal/model"
)

// InitDatabase opens the shared pool for DATABASE_URL and wraps it in GORM.
// An unreachable database is not an error here; /health reports it.
func InitDatabase(cfg *Config, log zerolog.Logger) (*gorm.DB, error) {
	dbType := model.DatabaseType(cfg.Database.Type)

	sqlDB, err := database.Open(dbType, cfg.Database.URL, database.PoolSettings{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}

	dialector, err := database.Dialector(dbType, sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               gormLogger(cfg.Logging.Level, log),
		DisableAutomaticPing: true,
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// gormLogger keeps GORM one level quieter than the application.
func gormLogger(level string, log zerolog.Logger) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "debug":
		logLevel = logger.Info
	case "info":
		logLevel = logger.Warn
	case "warn":
		logLevel = logger.Error
	case "error":
		logLevel = logger.Silent
	default:
		logLevel = logger.Warn
	}

	gl := log.With().Str("component", "gorm").Logger()
	return logger.New(&gl, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logLevel,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
