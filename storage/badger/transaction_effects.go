package badger

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/module"
	"github.com/onstrata/strata-go/module/metrics"
	"github.com/onstrata/strata-go/storage"
	"github.com/onstrata/strata-go/storage/badger/operation"
)

// TransactionEffects implements storage for certified transaction effects
// around a badger DB, with a read cache keyed by transaction digest.
type TransactionEffects struct {
	db    *badger.DB
	cache *Cache
}

var _ storage.TransactionEffects = (*TransactionEffects)(nil)

func NewTransactionEffects(collector module.CacheMetrics, db *badger.DB) *TransactionEffects {

	store := func(txDigest strata.Identifier, v interface{}) error {
		effects := v.(*strata.TransactionEffects)
		return operation.RetryOnConflict(db.Update,
			operation.SkipDuplicates(operation.InsertTransactionEffects(txDigest, effects)))
	}

	retrieve := func(txDigest strata.Identifier) (interface{}, error) {
		var effects strata.TransactionEffects
		err := db.View(operation.RetrieveTransactionEffects(txDigest, &effects))
		return &effects, err
	}

	t := &TransactionEffects{
		db: db,
		cache: newCache(collector,
			withLimit(10000),
			withStore(store),
			withRetrieve(retrieve),
			withResource(metrics.ResourceTransactionEffects)),
	}

	return t
}

func (t *TransactionEffects) Store(effects *strata.TransactionEffects) error {
	return t.cache.Put(effects.TransactionDigest, effects)
}

// BatchStore stores all given effects in a single badger write batch. The
// cache is only populated after the batch has been flushed successfully.
func (t *TransactionEffects) BatchStore(effects []*strata.TransactionEffects) error {
	batch := NewBatch(t.db)
	writer := batch.GetWriter()

	for _, e := range effects {
		err := operation.BatchInsertTransactionEffects(e)(writer)
		if err != nil {
			return fmt.Errorf("could not batch store effects %v: %w", e.TransactionDigest, err)
		}
	}

	batch.OnSucceed(func() {
		for _, e := range effects {
			t.cache.Insert(e.TransactionDigest, e)
		}
	})

	err := batch.Flush()
	if err != nil {
		return fmt.Errorf("could not flush effects batch: %w", err)
	}
	return nil
}

func (t *TransactionEffects) ByDigest(txDigest strata.Identifier) (*strata.TransactionEffects, error) {
	effects, err := t.cache.Get(txDigest)
	if err != nil {
		return nil, err
	}
	return effects.(*strata.TransactionEffects), nil
}

func (t *TransactionEffects) Remove(txDigest strata.Identifier) error {
	err := t.db.Update(operation.SkipNonExist(operation.RemoveTransactionEffects(txDigest)))
	if err != nil {
		return err
	}
	t.cache.Remove(txDigest)
	return nil
}
