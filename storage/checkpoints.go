package storage

import (
	"github.com/onstrata/strata-go/model/strata"
)

// Checkpoints represents persistent storage for finalized checkpoint headers
// and the sequence number index over them.
type Checkpoints interface {
	// Store stores the given checkpoint header and indexes it by its sequence
	// number. Storing the same checkpoint again is a no-op. It errors if a
	// different checkpoint is already indexed at the same sequence number.
	Store(checkpoint *strata.Checkpoint) error

	// ByID returns the checkpoint with the given ID.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if no checkpoint is known with the given ID
	ByID(checkpointID strata.Identifier) (*strata.Checkpoint, error)

	// BySequence returns the finalized checkpoint at the given sequence number.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if no checkpoint is known at the given sequence number
	BySequence(seq uint64) (*strata.Checkpoint, error)

	// IDBySequence returns the ID of the finalized checkpoint at the given
	// sequence number. It is an optimized version of `BySequence` that skips
	// retrieving the header.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if no checkpoint is known at the given sequence number
	IDBySequence(seq uint64) (strata.Identifier, error)

	// IDsBySequenceRange returns the IDs of all finalized checkpoints with a
	// sequence number in [start, end] (both inclusive), in increasing
	// sequence order. Sequence numbers without a stored checkpoint are
	// silently omitted, so the result may be shorter than the range.
	IDsBySequenceRange(start uint64, end uint64) ([]strata.Identifier, error)
}
