package metrics

import (
	"context"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

// HealthSummarizer reports how many resources are in each aggregated health status
type HealthSummarizer interface {
	HealthSummary(ctx context.Context) (map[types.HealthStatus]int, error)
}

// Collector periodically refreshes the inventory gauges
type Collector struct {
	source   HealthSummarizer
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source HealthSummarizer, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect(context.Background())

		for {
			select {
			case <-ticker.C:
				c.Collect(context.Background())
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect refreshes the gauges once
func (c *Collector) Collect(ctx context.Context) {
	counts, err := c.source.HealthSummary(ctx)
	if err != nil {
		logger := log.WithComponent("metrics")
		logger.Warn().Err(err).Msg("Failed to collect resource health summary")
		return
	}

	total := 0
	for _, status := range types.HealthStatuses {
		n := counts[status]
		total += n
		ResourcesByHealth.WithLabelValues(status.String()).Set(float64(n))
	}
	ResourcesTotal.Set(float64(total))
}
