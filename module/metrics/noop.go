package metrics

import (
	"time"

	"github.com/onstrata/strata-go/module"
)

type NoopCollector struct{}

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

func (nc *NoopCollector) CacheEntries(resource string, entries uint)                              {}
func (nc *NoopCollector) CacheHit(resource string)                                                {}
func (nc *NoopCollector) CacheNotFound(resource string)                                           {}
func (nc *NoopCollector) CacheMiss(resource string)                                               {}
func (nc *NoopCollector) CheckpointExecuted(seq uint64, duration time.Duration, transactions int) {}
func (nc *NoopCollector) HighestExecutedCheckpoint(seq uint64)                                    {}
func (nc *NoopCollector) HighestSyncedCheckpoint(seq uint64)                                      {}
func (nc *NoopCollector) ExecutionRetried()                                                       {}
func (nc *NoopCollector) CheckpointFeedGap(skipped uint64)                                        {}
func (nc *NoopCollector) CheckpointBuilt(seq uint64, duration time.Duration, transactions int)    {}
func (nc *NoopCollector) Pruned(seq uint64, duration time.Duration)                               {}

var _ module.CacheMetrics = (*NoopCollector)(nil)
var _ module.CheckpointExecutorMetrics = (*NoopCollector)(nil)
var _ module.CheckpointBuilderMetrics = (*NoopCollector)(nil)
var _ module.CheckpointPrunerMetrics = (*NoopCollector)(nil)
