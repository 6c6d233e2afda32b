package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"nl2sql-tool/internal/model"
)

// PoolSettings configures the shared *sql.DB.
type PoolSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open creates the process-wide connection pool for DATABASE_URL. It does not
// ping so the service can start while the database is still coming up.
func Open(dbType model.DatabaseType, databaseURL string, settings PoolSettings) (*sql.DB, error) {
	driverName, dsn, err := ParseDatabaseURL(dbType, databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	configureConnectionPool(db, settings)
	return db, nil
}

// configureConnectionPool configures the connection pool settings
func configureConnectionPool(db *sql.DB, settings PoolSettings) {
	maxOpenConns := settings.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	db.SetMaxOpenConns(maxOpenConns)

	maxIdleConns := settings.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = maxOpenConns / 2
		if maxIdleConns < 2 {
			maxIdleConns = 2
		}
	}
	db.SetMaxIdleConns(maxIdleConns)

	maxLifetime := settings.ConnMaxLifetime
	if maxLifetime <= 0 {
		maxLifetime = 30 * time.Minute
	}
	db.SetConnMaxLifetime(maxLifetime)

	idleTime := settings.ConnMaxIdleTime
	if idleTime <= 0 {
		idleTime = 30 * time.Second
	}
	db.SetConnMaxIdleTime(idleTime)
}

// Dialector wraps an existing pool in the gorm dialect for dbType.
func Dialector(dbType model.DatabaseType, conn *sql.DB) (gorm.Dialector, error) {
	switch dbType {
	case model.DatabaseTypeSQLite:
		return sqlite.New(sqlite.Config{DriverName: DriverSQLite, Conn: conn}), nil
	case model.DatabaseTypePostgreSQL:
		return postgres.New(postgres.Config{Conn: conn}), nil
	case model.DatabaseTypeMySQL:
		return mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true}), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
