package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"

	"github.com/onstrata/strata-go/module"
)

var _ module.CheckpointExecutorMetrics = (*CheckpointExecutorCollector)(nil)

type CheckpointExecutorCollector struct {
	highestExecuted   prometheus.Gauge
	highestSynced     prometheus.Gauge
	executionLag      prometheus.Gauge
	executionDuration prometheus.Histogram

	executedCheckpoints  prometheus.Counter
	executedTransactions prometheus.Counter
	executionRetries     prometheus.Counter
	skippedFeedItems     prometheus.Counter

	// last observed watermarks, kept to derive the lag gauge
	lastExecuted *atomic.Uint64
	lastSynced   *atomic.Uint64
}

func NewCheckpointExecutorCollector() *CheckpointExecutorCollector {

	highestExecuted := promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemExecutor,
		Name:      "highest_executed_checkpoint",
		Help:      "highest checkpoint sequence number that has been fully executed",
	})

	highestSynced := promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemExecutor,
		Name:      "highest_synced_checkpoint",
		Help:      "highest finalized checkpoint sequence number observed on the feed",
	})

	executionLag := promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemExecutor,
		Name:      "execution_lag",
		Help:      "number of synced checkpoints that have not been executed yet",
	})

	executionDuration := promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemExecutor,
		Name:      "execution_duration_ms",
		Help:      "the duration of replaying a single checkpoint",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})

	executedCheckpoints := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemExecutor,
		Name:      "executed_checkpoints_total",
		Help:      "number of checkpoints executed since startup",
	})

	executedTransactions := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemExecutor,
		Name:      "executed_transactions_total",
		Help:      "number of transactions replayed since startup",
	})

	executionRetries := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemExecutor,
		Name:      "execution_retries_total",
		Help:      "number of retries of transient failures inside checkpoint execution tasks",
	})

	skippedFeedItems := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespaceCheckpoint,
		Subsystem: subsystemExecutor,
		Name:      "skipped_feed_items_total",
		Help:      "number of feed notifications dropped because the executor fell behind",
	})

	return &CheckpointExecutorCollector{
		highestExecuted:      highestExecuted,
		highestSynced:        highestSynced,
		executionLag:         executionLag,
		executionDuration:    executionDuration,
		executedCheckpoints:  executedCheckpoints,
		executedTransactions: executedTransactions,
		executionRetries:     executionRetries,
		skippedFeedItems:     skippedFeedItems,
		lastExecuted:         atomic.NewUint64(0),
		lastSynced:           atomic.NewUint64(0),
	}
}

func (c *CheckpointExecutorCollector) updateLag() {
	executed := c.lastExecuted.Load()
	synced := c.lastSynced.Load()
	// the synced gauge trails the executed one until the first feed item
	// arrives after a restart
	if synced < executed {
		c.executionLag.Set(0)
		return
	}
	c.executionLag.Set(float64(synced - executed))
}

// CheckpointExecuted records metrics from replaying a single checkpoint.
func (c *CheckpointExecutorCollector) CheckpointExecuted(seq uint64, duration time.Duration, transactions int) {
	c.executionDuration.Observe(float64(duration.Milliseconds()))
	c.executedCheckpoints.Inc()
	c.executedTransactions.Add(float64(transactions))
}

// HighestExecutedCheckpoint records the executed watermark after it advanced.
func (c *CheckpointExecutorCollector) HighestExecutedCheckpoint(seq uint64) {
	c.highestExecuted.Set(float64(seq))
	c.lastExecuted.Store(seq)
	c.updateLag()
}

// HighestSyncedCheckpoint records the highest finalized checkpoint sequence
// number observed on the feed.
func (c *CheckpointExecutorCollector) HighestSyncedCheckpoint(seq uint64) {
	c.highestSynced.Set(float64(seq))
	c.lastSynced.Store(seq)
	c.updateLag()
}

// ExecutionRetried records one retry of a transient failure inside a
// checkpoint execution task.
func (c *CheckpointExecutorCollector) ExecutionRetried() {
	c.executionRetries.Inc()
}

// CheckpointFeedGap records how many feed notifications were skipped because
// the executor fell behind.
func (c *CheckpointExecutorCollector) CheckpointFeedGap(skipped uint64) {
	c.skippedFeedItems.Add(float64(skipped))
}
