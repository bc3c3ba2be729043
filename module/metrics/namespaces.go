package metrics

// Prometheus metric namespaces
const (
	namespaceCheckpoint = "checkpoint"
	namespaceStorage    = "storage"
)

// Checkpoint namespace subsystems
const (
	subsystemExecutor = "executor"
	subsystemBuilder  = "builder"
	subsystemPruner   = "pruner"
)

// Storage namespace subsystems
const (
	subsystemCache = "cache"
)
