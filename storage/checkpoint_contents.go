package storage

import (
	"github.com/onstrata/strata-go/model/strata"
)

// CheckpointContents represents persistent storage for the transaction lists
// of checkpoints. Contents are stored by their own identifier, which the
// checkpoint header commits to, and may be removed again once the checkpoint
// has been executed and fell out of the retention window.
type CheckpointContents interface {
	// Store stores the given contents by their ID. Storing the same contents
	// again is a no-op.
	Store(contents *strata.CheckpointContents) error

	// ByID returns the contents with the given ID.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if no contents are known with the given ID
	ByID(contentsID strata.Identifier) (*strata.CheckpointContents, error)

	// Remove removes the contents with the given ID. Removing contents that
	// are not stored is a no-op.
	Remove(contentsID strata.Identifier) error
}
