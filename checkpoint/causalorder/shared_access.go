package causalorder

import (
	"github.com/onstrata/strata-go/model/strata"
)

// sharedAccessDeps captures the ordering edges between transactions that
// accessed the same shared object version within one batch. A transaction
// overwriting version V of a shared object carries no data dependency on the
// transactions that only read V, but the canonical order must still place all
// readers of V before the overwrite.
type sharedAccessDeps struct {
	// readers maps an object version to the transactions that read it as a
	// shared object without writing a newer version.
	readers map[strata.ObjectKey][]strata.Identifier
	// overwrites maps a transaction to the object versions it overwrote.
	overwrites map[strata.Identifier][]strata.ObjectKey
}

// newSharedAccessDeps indexes the shared-object accesses of the batch in a
// single pass.
func newSharedAccessDeps(batch []*strata.TransactionEffects) *sharedAccessDeps {
	deps := &sharedAccessDeps{
		readers:    make(map[strata.ObjectKey][]strata.Identifier),
		overwrites: make(map[strata.Identifier][]strata.ObjectKey),
	}

	for _, effects := range batch {
		if len(effects.SharedObjects) == 0 {
			continue
		}

		modified := make(map[strata.ObjectKey]struct{}, len(effects.ModifiedAtVersions))
		for _, key := range effects.ModifiedAtVersions {
			modified[key] = struct{}{}
		}

		for _, ref := range effects.SharedObjects {
			key := ref.Key()
			if _, overwrote := modified[key]; overwrote {
				deps.overwrites[effects.TransactionDigest] = append(deps.overwrites[effects.TransactionDigest], key)
			} else {
				deps.readers[key] = append(deps.readers[key], effects.TransactionDigest)
			}
		}
	}

	return deps
}

// addImplied adds the implied dependencies of the given transaction to the
// set: for every object version the transaction overwrote, all readers of
// that version.
func (d *sharedAccessDeps) addImplied(digest strata.Identifier, deps map[strata.Identifier]struct{}) {
	for _, key := range d.overwrites[digest] {
		for _, reader := range d.readers[key] {
			deps[reader] = struct{}{}
		}
	}
}
