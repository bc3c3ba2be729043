package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onstrata/strata-go/module"
)

var _ module.CheckpointPrunerMetrics = (*CheckpointPrunerCollector)(nil)

type CheckpointPrunerCollector struct {
	lastPruned    prometheus.Gauge
	pruneDuration prometheus.Histogram
}

func NewCheckpointPrunerCollector() *CheckpointPrunerCollector {

	lastPruned := promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemPruner,
		Name:      "last_pruned_checkpoint",
		Help:      "highest checkpoint sequence number whose contents have been pruned",
	})

	pruneDuration := promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemPruner,
		Name:      "prune_duration_ms",
		Help:      "the duration of a single pruning pass",
		Buckets:   []float64{10, 100, 1000, 10000, 60000},
	})

	return &CheckpointPrunerCollector{
		lastPruned:    lastPruned,
		pruneDuration: pruneDuration,
	}
}

// Pruned records that checkpoint contents up to and including the given
// sequence number have been removed.
func (c *CheckpointPrunerCollector) Pruned(seq uint64, duration time.Duration) {
	c.lastPruned.Set(float64(seq))
	c.pruneDuration.Observe(float64(duration.Milliseconds()))
}
