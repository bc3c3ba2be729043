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

func TestCheckpointInsertRetrieve(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		checkpoint := unittest.CheckpointFixture()

		err := db.Update(InsertCheckpoint(checkpoint.ID(), checkpoint))
		require.NoError(t, err)

		var retrieved strata.Checkpoint
		err = db.View(RetrieveCheckpoint(checkpoint.ID(), &retrieved))
		require.NoError(t, err)

		assert.Equal(t, checkpoint, &retrieved)
	})
}

func TestCheckpointInsertDuplicate(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		checkpoint := unittest.CheckpointFixture()

		err := db.Update(InsertCheckpoint(checkpoint.ID(), checkpoint))
		require.NoError(t, err)

		err = db.Update(InsertCheckpoint(checkpoint.ID(), checkpoint))
		require.ErrorIs(t, err, storage.ErrAlreadyExists)
	})
}

func TestCheckpointRetrieveNonExist(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		var retrieved strata.Checkpoint
		err := db.View(RetrieveCheckpoint(unittest.IdentifierFixture(), &retrieved))
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestCheckpointSequenceIndexLookup(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		seq := uint64(1337)
		expected := unittest.IdentifierFixture()

		err := db.Update(IndexCheckpointSequence(seq, expected))
		require.NoError(t, err)

		var actual strata.Identifier
		err = db.View(LookupCheckpointSequence(seq, &actual))
		require.NoError(t, err)
		assert.Equal(t, expected, actual)

		err = db.View(LookupCheckpointSequence(seq+1, &actual))
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestCheckpointSequenceRangeLookup(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		ids := unittest.IdentifierListFixture(5)

		err := db.Update(func(tx *badger.Txn) error {
			for i, id := range ids {
				if err := IndexCheckpointSequence(uint64(10+i), id)(tx); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		// the full range comes back in increasing sequence order
		var actual []strata.Identifier
		err = db.View(LookupCheckpointSequenceRange(10, 14, &actual))
		require.NoError(t, err)
		assert.Equal(t, []strata.Identifier(ids), actual)

		// a sub-range excludes the rest
		err = db.View(LookupCheckpointSequenceRange(11, 13, &actual))
		require.NoError(t, err)
		assert.Equal(t, []strata.Identifier(ids[1:4]), actual)

		// an empty range yields no results
		err = db.View(LookupCheckpointSequenceRange(20, 30, &actual))
		require.NoError(t, err)
		assert.Empty(t, actual)
	})
}

func TestCheckpointContentsInsertRetrieveRemove(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		contents := unittest.CheckpointContentsFixture(7)

		err := db.Update(InsertCheckpointContents(contents.ID(), contents))
		require.NoError(t, err)

		var retrieved strata.CheckpointContents
		err = db.View(RetrieveCheckpointContents(contents.ID(), &retrieved))
		require.NoError(t, err)
		assert.Equal(t, contents, &retrieved)

		err = db.Update(RemoveCheckpointContents(contents.ID()))
		require.NoError(t, err)

		err = db.View(RetrieveCheckpointContents(contents.ID(), &retrieved))
		require.ErrorIs(t, err, storage.ErrNotFound)

		// removing again errors, unless explicitly skipped
		err = db.Update(RemoveCheckpointContents(contents.ID()))
		require.ErrorIs(t, err, storage.ErrNotFound)

		err = db.Update(SkipNonExist(RemoveCheckpointContents(contents.ID())))
		require.NoError(t, err)
	})
}
