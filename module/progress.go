package module

// Names of the consumer progress trackers persisted through
// storage.ConsumerProgress. Each consumer owns exactly one entry.
const (
	// ConsumeProgressExecutedCheckpointSequence tracks the highest checkpoint
	// sequence number that has been fully replayed (the executed watermark).
	ConsumeProgressExecutedCheckpointSequence = "ConsumeProgressExecutedCheckpointSequence"

	// ConsumeProgressBuiltCheckpointSequence tracks the highest checkpoint
	// sequence number built and persisted locally (the built watermark).
	ConsumeProgressBuiltCheckpointSequence = "ConsumeProgressBuiltCheckpointSequence"

	// ConsumeProgressPrunedCheckpointSequence tracks the highest checkpoint
	// sequence number whose full contents have been pruned.
	ConsumeProgressPrunedCheckpointSequence = "ConsumeProgressPrunedCheckpointSequence"
)
