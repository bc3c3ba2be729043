package operation

import (
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/storage"
	"github.com/onstrata/strata-go/utils/unittest"
)

func TestTransactionEffectsInsertRetrieve(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		effects := unittest.EffectsFixture(
			unittest.WithDependencies(unittest.IdentifierFixture(), unittest.IdentifierFixture()),
			unittest.WithSharedReads(unittest.ObjectKeyFixture()),
		)

		err := db.Update(InsertTransactionEffects(effects.TransactionDigest, effects))
		require.NoError(t, err)

		var retrieved strata.TransactionEffects
		err = db.View(RetrieveTransactionEffects(effects.TransactionDigest, &retrieved))
		require.NoError(t, err)

		assert.Equal(t, effects, &retrieved)
	})
}

func TestTransactionEffectsRetrieveNonExist(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		var retrieved strata.TransactionEffects
		err := db.View(RetrieveTransactionEffects(unittest.IdentifierFixture(), &retrieved))
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestTransactionEffectsInsertDuplicateSkipped(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		effects := unittest.EffectsFixture()

		err := db.Update(InsertTransactionEffects(effects.TransactionDigest, effects))
		require.NoError(t, err)

		err = db.Update(InsertTransactionEffects(effects.TransactionDigest, effects))
		require.ErrorIs(t, err, storage.ErrAlreadyExists)

		err = db.Update(SkipDuplicates(InsertTransactionEffects(effects.TransactionDigest, effects)))
		require.NoError(t, err)
	})
}
