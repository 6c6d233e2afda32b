package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"nl2sql-tool/internal/middleware"
)

// MetricsCollector samples connection pool statistics into the Prometheus
// gauges on a fixed interval, so /metrics stays current between health checks.
type MetricsCollector struct {
	probe    DatabaseProbe
	metrics  *middleware.Metrics
	interval time.Duration
	log      zerolog.Logger
}

func NewMetricsCollector(probe DatabaseProbe, metrics *middleware.Metrics, interval time.Duration, log zerolog.Logger) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MetricsCollector{
		probe:    probe,
		metrics:  metrics,
		interval: interval,
		log:      log.With().Str("component", "metrics_collector").Logger(),
	}
}

// Run collects until ctx is done.
func (mc *MetricsCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()
	for {
		select {
		case <-ctx.Done():
			mc.log.Debug().Msg("metrics collector stopped")
			return
		case <-ticker.C:
			mc.collect()
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.probe == nil || mc.metrics == nil {
		return
	}
	mc.metrics.UpdateConnectionPool(mc.probe.Stats())
}
