package module

import (
	"time"
)

type CacheMetrics interface {
	// CacheEntries report the total number of cached items
	CacheEntries(resource string, entries uint)
	// CacheHit report the number of times the queried item is found in the cache
	CacheHit(resource string)
	// CacheNotFound records the number of times the queried item was not found in either cache or database.
	CacheNotFound(resource string)
	// CacheMiss report the number of times the queried item is not found in the cache, but found in the database.
	CacheMiss(resource string)
}

type CheckpointExecutorMetrics interface {
	// CheckpointExecuted records one fully replayed checkpoint.
	CheckpointExecuted(seq uint64, duration time.Duration, transactions int)

	// HighestExecutedCheckpoint records the executed watermark after it advanced.
	HighestExecutedCheckpoint(seq uint64)

	// HighestSyncedCheckpoint records the highest finalized checkpoint
	// sequence number observed on the feed.
	HighestSyncedCheckpoint(seq uint64)

	// ExecutionRetried reports one retry of a transient failure inside a
	// checkpoint execution task.
	ExecutionRetried()

	// CheckpointFeedGap reports how many feed notifications were skipped
	// because the executor fell behind.
	CheckpointFeedGap(skipped uint64)
}

type CheckpointBuilderMetrics interface {
	// CheckpointBuilt records one checkpoint assembled and persisted locally.
	CheckpointBuilt(seq uint64, duration time.Duration, transactions int)
}

type CheckpointPrunerMetrics interface {
	// Pruned records that checkpoint contents up to and including the given
	// sequence number have been removed.
	Pruned(seq uint64, duration time.Duration)
}
