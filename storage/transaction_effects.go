package storage

import (
	"github.com/onstrata/strata-go/model/strata"
)

// TransactionEffects represents persistent storage for certified transaction
// effects, keyed by transaction digest. Effects become available as the
// network certifies them, which may be after the checkpoint referencing them
// has been observed.
type TransactionEffects interface {
	// Store stores the given effects by their transaction digest. Storing the
	// same effects again is a no-op.
	Store(effects *strata.TransactionEffects) error

	// BatchStore stores all given effects, skipping those already stored.
	BatchStore(effects []*strata.TransactionEffects) error

	// ByDigest returns the effects for the transaction with the given digest.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if no effects are known for the given digest,
	//     i.e. the transaction has not been certified yet
	ByDigest(txDigest strata.Identifier) (*strata.TransactionEffects, error)

	// Remove removes the effects for the given digest. Removing effects that
	// are not stored is a no-op.
	Remove(txDigest strata.Identifier) error
}
