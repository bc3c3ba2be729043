package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/onstrata/strata-go/model/strata"
)

func InsertCheckpoint(checkpointID strata.Identifier, checkpoint *strata.Checkpoint) func(*badger.Txn) error {
	return insert(makePrefix(codeCheckpoint, checkpointID), checkpoint)
}

func RetrieveCheckpoint(checkpointID strata.Identifier, checkpoint *strata.Checkpoint) func(*badger.Txn) error {
	return retrieve(makePrefix(codeCheckpoint, checkpointID), checkpoint)
}

// IndexCheckpointSequence indexes the checkpoint ID of the finalized
// checkpoint at the given sequence number. Sequence numbers are keyed
// big-endian, so badger iterates the index in increasing sequence order.
func IndexCheckpointSequence(seq uint64, checkpointID strata.Identifier) func(*badger.Txn) error {
	return insert(makePrefix(codeSequenceToCheckpoint, seq), checkpointID)
}

// LookupCheckpointSequence looks up the ID of the finalized checkpoint at the
// given sequence number.
func LookupCheckpointSequence(seq uint64, checkpointID *strata.Identifier) func(*badger.Txn) error {
	return retrieve(makePrefix(codeSequenceToCheckpoint, seq), checkpointID)
}

// LookupCheckpointSequenceRange collects the IDs of all finalized checkpoints
// with a sequence number in the range [start, end] (both inclusive), in
// increasing sequence order.
func LookupCheckpointSequenceRange(start uint64, end uint64, checkpointIDs *[]strata.Identifier) func(*badger.Txn) error {
	return iterate(makePrefix(codeSequenceToCheckpoint, start), makePrefix(codeSequenceToCheckpoint, end), lookup(checkpointIDs))
}

func InsertCheckpointContents(contentsID strata.Identifier, contents *strata.CheckpointContents) func(*badger.Txn) error {
	return insert(makePrefix(codeCheckpointContents, contentsID), contents)
}

func RetrieveCheckpointContents(contentsID strata.Identifier, contents *strata.CheckpointContents) func(*badger.Txn) error {
	return retrieve(makePrefix(codeCheckpointContents, contentsID), contents)
}

func RemoveCheckpointContents(contentsID strata.Identifier) func(*badger.Txn) error {
	return remove(makePrefix(codeCheckpointContents, contentsID))
}
