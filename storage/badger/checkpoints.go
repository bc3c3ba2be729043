package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/module"
	"github.com/onstrata/strata-go/module/metrics"
	"github.com/onstrata/strata-go/storage"
	"github.com/onstrata/strata-go/storage/badger/operation"
)

// Checkpoints implements checkpoint header storage around a badger DB, with
// a read cache keyed by checkpoint ID.
type Checkpoints struct {
	db    *badger.DB
	cache *Cache
}

var _ storage.Checkpoints = (*Checkpoints)(nil)

func NewCheckpoints(collector module.CacheMetrics, db *badger.DB) *Checkpoints {

	store := func(checkpointID strata.Identifier, v interface{}) error {
		checkpoint := v.(*strata.Checkpoint)
		return operation.RetryOnConflict(db.Update, func(tx *badger.Txn) error {

			err := operation.SkipDuplicates(operation.InsertCheckpoint(checkpointID, checkpoint))(tx)
			if err != nil {
				return fmt.Errorf("could not insert checkpoint: %w", err)
			}

			// the sequence index must always agree with the header store; a
			// conflicting entry means we are trying to finalize two different
			// checkpoints at the same sequence number
			err = operation.IndexCheckpointSequence(checkpoint.SequenceNumber, checkpointID)(tx)
			if errors.Is(err, storage.ErrAlreadyExists) {
				var indexed strata.Identifier
				err = operation.LookupCheckpointSequence(checkpoint.SequenceNumber, &indexed)(tx)
				if err != nil {
					return fmt.Errorf("could not look up indexed checkpoint: %w", err)
				}
				if indexed != checkpointID {
					return fmt.Errorf("sequence %d already indexes checkpoint %v: %w",
						checkpoint.SequenceNumber, indexed, storage.ErrDataMismatch)
				}
				return nil
			}
			if err != nil {
				return fmt.Errorf("could not index checkpoint sequence: %w", err)
			}

			return nil
		})
	}

	retrieve := func(checkpointID strata.Identifier) (interface{}, error) {
		var checkpoint strata.Checkpoint
		err := db.View(operation.RetrieveCheckpoint(checkpointID, &checkpoint))
		return &checkpoint, err
	}

	c := &Checkpoints{
		db: db,
		cache: newCache(collector,
			withLimit(1000),
			withStore(store),
			withRetrieve(retrieve),
			withResource(metrics.ResourceCheckpoint)),
	}

	return c
}

func (c *Checkpoints) Store(checkpoint *strata.Checkpoint) error {
	return c.cache.Put(checkpoint.ID(), checkpoint)
}

func (c *Checkpoints) ByID(checkpointID strata.Identifier) (*strata.Checkpoint, error) {
	checkpoint, err := c.cache.Get(checkpointID)
	if err != nil {
		return nil, err
	}
	return checkpoint.(*strata.Checkpoint), nil
}

func (c *Checkpoints) BySequence(seq uint64) (*strata.Checkpoint, error) {
	checkpointID, err := c.IDBySequence(seq)
	if err != nil {
		return nil, err
	}
	return c.ByID(checkpointID)
}

func (c *Checkpoints) IDBySequence(seq uint64) (strata.Identifier, error) {
	var checkpointID strata.Identifier
	err := c.db.View(operation.LookupCheckpointSequence(seq, &checkpointID))
	if err != nil {
		return strata.ZeroID, err
	}
	return checkpointID, nil
}

func (c *Checkpoints) IDsBySequenceRange(start uint64, end uint64) ([]strata.Identifier, error) {
	var checkpointIDs []strata.Identifier
	err := c.db.View(operation.LookupCheckpointSequenceRange(start, end, &checkpointIDs))
	if err != nil {
		return nil, fmt.Errorf("could not look up sequence range: %w", err)
	}
	return checkpointIDs, nil
}
