package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HealthChecker probes the shared pool with a trivial statement.
type HealthChecker struct {
	db      *sql.DB
	timeout time.Duration
}

// NewHealthChecker creates a new HealthChecker instance
func NewHealthChecker(db *sql.DB, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		db:      db,
		timeout: timeout,
	}
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Healthy reports whether the probe succeeded.
func (r *HealthCheckResult) Healthy() bool {
	return r.Status == "healthy"
}

// Check runs SELECT 1 within the checker's timeout. It never returns an
// error; failures are reported in the result.
func (hc *HealthChecker) Check(ctx context.Context) *HealthCheckResult {
	startTime := time.Now()
	result := &HealthCheckResult{CheckedAt: startTime}

	if hc.db == nil {
		result.Status = "unhealthy"
		result.Message = "database not configured"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	var one int
	err := hc.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	result.Latency = time.Since(startTime)

	if err != nil {
		result.Status = "unhealthy"
		result.Message = fmt.Sprintf("Connection test failed: %v", err)
		return result
	}

	result.Status = "healthy"
	result.Message = "Connection successful"
	return result
}

// Stats exposes pool statistics for metrics.
func (hc *HealthChecker) Stats() sql.DBStats {
	if hc.db == nil {
		return sql.DBStats{}
	}
	return hc.db.Stats()
}
