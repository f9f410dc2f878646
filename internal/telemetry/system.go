package telemetry

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCollectInterval is used when no interval is configured.
const DefaultCollectInterval = 15 * time.Second

// SystemMetricsCollector samples runtime metrics periodically
type SystemMetricsCollector struct {
	metrics  *Metrics
	logger   zerolog.Logger
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewSystemMetricsCollector creates a collector. A non-positive interval
// selects DefaultCollectInterval.
func NewSystemMetricsCollector(metrics *Metrics, logger zerolog.Logger, interval time.Duration) *SystemMetricsCollector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &SystemMetricsCollector{
		metrics:  metrics,
		logger:   logger.With().Str("component", "system_metrics").Logger(),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start samples immediately and then on every tick until ctx ends or Stop is called.
func (c *SystemMetricsCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Debug().
		Dur("interval", c.interval).
		Msg("Starting system metrics collection")

	c.Collect()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug().Msg("Stopping system metrics collection due to context cancellation")
			return
		case <-c.done:
			c.logger.Debug().Msg("Stopping system metrics collection")
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Stop ends collection. It is safe to call more than once.
func (c *SystemMetricsCollector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Collect takes one sample.
func (c *SystemMetricsCollector) Collect() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	goroutines := runtime.NumGoroutine()

	c.metrics.UpdateSystemMetrics(goroutines, m.Alloc)

	c.logger.Trace().
		Int("goroutines", goroutines).
		Uint64("memory_bytes", m.Alloc).
		Msg("Updated system metrics")
}
