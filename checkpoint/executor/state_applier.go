package executor

import (
	"context"

	"github.com/onstrata/strata-go/model/strata"
)

// StateApplier applies certified transaction effects to the local object
// store. It is the boundary between checkpoint replay and the state layer:
// the executor guarantees that Apply is called in the canonical order fixed
// by the checkpoint contents, the applier guarantees that the local state
// ends up reflecting the effects.
type StateApplier interface {
	// Apply applies the effects of a single transaction belonging to the
	// given checkpoint. Apply must be idempotent: after a crash, every
	// transaction of a partially executed checkpoint is applied again on
	// restart.
	//
	// Errors are treated as transient and the call is retried until it
	// succeeds or the context is cancelled.
	Apply(ctx context.Context, checkpoint *strata.Checkpoint, effects *strata.TransactionEffects) error
}
