package badger

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/module"
	"github.com/onstrata/strata-go/module/metrics"
	"github.com/onstrata/strata-go/storage"
	"github.com/onstrata/strata-go/storage/badger/operation"
)

// CheckpointContents implements storage for checkpoint transaction lists
// around a badger DB, with a read cache keyed by contents ID.
type CheckpointContents struct {
	db    *badger.DB
	cache *Cache
}

var _ storage.CheckpointContents = (*CheckpointContents)(nil)

func NewCheckpointContents(collector module.CacheMetrics, db *badger.DB) *CheckpointContents {

	store := func(contentsID strata.Identifier, v interface{}) error {
		contents := v.(*strata.CheckpointContents)
		return operation.RetryOnConflict(db.Update,
			operation.SkipDuplicates(operation.InsertCheckpointContents(contentsID, contents)))
	}

	retrieve := func(contentsID strata.Identifier) (interface{}, error) {
		var contents strata.CheckpointContents
		err := db.View(operation.RetrieveCheckpointContents(contentsID, &contents))
		return &contents, err
	}

	c := &CheckpointContents{
		db: db,
		cache: newCache(collector,
			withLimit(100),
			withStore(store),
			withRetrieve(retrieve),
			withResource(metrics.ResourceCheckpointContents)),
	}

	return c
}

func (c *CheckpointContents) Store(contents *strata.CheckpointContents) error {
	return c.cache.Put(contents.ID(), contents)
}

func (c *CheckpointContents) ByID(contentsID strata.Identifier) (*strata.CheckpointContents, error) {
	contents, err := c.cache.Get(contentsID)
	if err != nil {
		return nil, err
	}
	return contents.(*strata.CheckpointContents), nil
}

func (c *CheckpointContents) Remove(contentsID strata.Identifier) error {
	err := c.db.Update(operation.SkipNonExist(operation.RemoveCheckpointContents(contentsID)))
	if err != nil {
		return err
	}
	c.cache.Remove(contentsID)
	return nil
}
