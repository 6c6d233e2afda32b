package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"nl2sql-tool/internal/database"
	"nl2sql-tool/internal/middleware"
)

type fixedStatsProbe struct {
	stats sql.DBStats
}

func (p fixedStatsProbe) Check(context.Context) *database.HealthCheckResult {
	return &database.HealthCheckResult{Status: "healthy"}
}

func (p fixedStatsProbe) Stats() sql.DBStats { return p.stats }

func TestMetricsCollector_Run(t *testing.T) {
	metrics := middleware.NewMetrics(prometheus.NewRegistry())
	probe := fixedStatsProbe{stats: sql.DBStats{OpenConnections: 3, InUse: 1, Idle: 2}}
	collector := NewMetricsCollector(probe, metrics, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		collector.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.ConnectionPoolOpen) == 3
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ConnectionPoolInUse))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ConnectionPoolIdle))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestMetricsCollector_NilMetrics(t *testing.T) {
	collector := NewMetricsCollector(fixedStatsProbe{}, nil, 0, zerolog.Nop())
	assert.NotPanics(t, collector.collect)
}
