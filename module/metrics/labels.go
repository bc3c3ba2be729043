package metrics

const (
	LabelChain    = "chain"
	LabelResource = "resource"
)

const (
	ResourceUndefined          = "undefined"
	ResourceCheckpoint         = "checkpoint"
	ResourceCheckpointContents = "checkpoint_contents"
	ResourceTransactionEffects = "transaction_effects"
)
