package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onstrata/strata-go/module"
)

var _ module.CheckpointBuilderMetrics = (*CheckpointBuilderCollector)(nil)

type CheckpointBuilderCollector struct {
	lastBuilt         prometheus.Gauge
	buildDuration     prometheus.Histogram
	builtCheckpoints  prometheus.Counter
	builtTransactions prometheus.Counter
}

func NewCheckpointBuilderCollector() *CheckpointBuilderCollector {

	lastBuilt := promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemBuilder,
		Name:      "last_built_checkpoint",
		Help:      "sequence number of the last locally built checkpoint",
	})

	buildDuration := promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemBuilder,
		Name:      "build_duration_ms",
		Help:      "the duration of assembling and persisting a single checkpoint",
		Buckets:   []float64{1, 5, 10, 50, 100, 500},
	})

	builtCheckpoints := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemBuilder,
		Name:      "built_checkpoints_total",
		Help:      "number of checkpoints built since startup",
	})

	builtTransactions := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemBuilder,
		Name:      "built_transactions_total",
		Help:      "number of transactions included in built checkpoints since startup",
	})

	return &CheckpointBuilderCollector{
		lastBuilt:         lastBuilt,
		buildDuration:     buildDuration,
		builtCheckpoints:  builtCheckpoints,
		builtTransactions: builtTransactions,
	}
}

// CheckpointBuilt records metrics from assembling a single checkpoint.
func (c *CheckpointBuilderCollector) CheckpointBuilt(seq uint64, duration time.Duration, transactions int) {
	c.lastBuilt.Set(float64(seq))
	c.buildDuration.Observe(float64(duration.Milliseconds()))
	c.builtCheckpoints.Inc()
	c.builtTransactions.Add(float64(transactions))
}
