package module

import (
	"context"

	"github.com/onstrata/strata-go/model/strata"
)

// EpochTransitioner handles the reconfiguration of the node at an epoch
// boundary. The checkpoint executor invokes it after replaying the final
// checkpoint of an epoch and before dispatching any checkpoint of the next
// epoch.
type EpochTransitioner interface {

	// TransitionEpoch performs the switch-over to the committee named by the
	// EndOfEpoch data of the given epoch-final checkpoint. It returns only
	// once the node is ready to process the next epoch.
	//
	// TransitionEpoch must be idempotent: after a crash between the epoch
	// transition and the watermark update, the transition for the same
	// checkpoint is performed again on restart.
	//
	// No errors are expected during normal operation. Any error means the
	// node cannot follow the canonical chain past the boundary.
	TransitionEpoch(ctx context.Context, final *strata.Checkpoint) error
}
