package badger_test

import (
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/require"

	"github.com/onstrata/strata-go/module/metrics"
	"github.com/onstrata/strata-go/storage"
	bstorage "github.com/onstrata/strata-go/storage/badger"
	"github.com/onstrata/strata-go/utils/unittest"
)

func TestTransactionEffectsReadNonExist(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		metrics := metrics.NewNoopCollector()
		store := bstorage.NewTransactionEffects(metrics, db)

		_, err := store.ByDigest(unittest.IdentifierFixture())
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestTransactionEffectsStoreRead(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		metrics := metrics.NewNoopCollector()
		store := bstorage.NewTransactionEffects(metrics, db)

		effects := unittest.EffectsFixture(
			unittest.WithDependencies(unittest.IdentifierFixture()),
			unittest.WithOverwrites(unittest.ObjectKeyFixture()),
		)
		err := store.Store(effects)
		require.NoError(t, err)

		// storing the same effects again is a no-op
		err = store.Store(effects)
		require.NoError(t, err)

		actual, err := store.ByDigest(effects.TransactionDigest)
		require.NoError(t, err)
		require.Equal(t, effects, actual)
	})
}

func TestTransactionEffectsBatchStore(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		metrics := metrics.NewNoopCollector()
		store := bstorage.NewTransactionEffects(metrics, db)

		batch := unittest.EffectsListFixture(10)
		// one of them was already stored individually
		err := store.Store(batch[4])
		require.NoError(t, err)

		err = store.BatchStore(batch)
		require.NoError(t, err)

		// all effects are readable, also through a fresh store instance
		freshStore := bstorage.NewTransactionEffects(metrics, db)
		for _, expected := range batch {
			actual, err := store.ByDigest(expected.TransactionDigest)
			require.NoError(t, err)
			require.Equal(t, expected, actual)

			actual, err = freshStore.ByDigest(expected.TransactionDigest)
			require.NoError(t, err)
			require.Equal(t, expected, actual)
		}
	})
}

func TestTransactionEffectsRemove(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		metrics := metrics.NewNoopCollector()
		store := bstorage.NewTransactionEffects(metrics, db)

		effects := unittest.EffectsFixture()
		err := store.Store(effects)
		require.NoError(t, err)

		err = store.Remove(effects.TransactionDigest)
		require.NoError(t, err)

		_, err = store.ByDigest(effects.TransactionDigest)
		require.ErrorIs(t, err, storage.ErrNotFound)

		// removing effects that are not stored is a no-op
		err = store.Remove(effects.TransactionDigest)
		require.NoError(t, err)
	})
}
