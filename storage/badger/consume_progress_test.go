package badger_test

import (
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/require"

	"github.com/onstrata/strata-go/module"
	"github.com/onstrata/strata-go/storage"
	bstorage "github.com/onstrata/strata-go/storage/badger"
	"github.com/onstrata/strata-go/utils/unittest"
)

func TestConsumerProgressUninitialized(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		progress := bstorage.NewConsumerProgress(db, module.ConsumeProgressExecutedCheckpointSequence)

		_, err := progress.ProcessedIndex()
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestConsumerProgressInitSetRead(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		progress := bstorage.NewConsumerProgress(db, module.ConsumeProgressExecutedCheckpointSequence)
		require.Equal(t, module.ConsumeProgressExecutedCheckpointSequence, progress.Consumer())

		err := progress.InitProcessedIndex(0)
		require.NoError(t, err)

		index, err := progress.ProcessedIndex()
		require.NoError(t, err)
		require.Equal(t, uint64(0), index)

		// initializing a second time fails
		err = progress.InitProcessedIndex(10)
		require.ErrorIs(t, err, storage.ErrAlreadyExists)

		err = progress.SetProcessedIndex(8)
		require.NoError(t, err)

		index, err = progress.ProcessedIndex()
		require.NoError(t, err)
		require.Equal(t, uint64(8), index)
	})
}

func TestConsumerProgressIsolatedByConsumer(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		executed := bstorage.NewConsumerProgress(db, module.ConsumeProgressExecutedCheckpointSequence)
		pruned := bstorage.NewConsumerProgress(db, module.ConsumeProgressPrunedCheckpointSequence)

		err := executed.InitProcessedIndex(100)
		require.NoError(t, err)
		err = pruned.InitProcessedIndex(0)
		require.NoError(t, err)

		executedIndex, err := executed.ProcessedIndex()
		require.NoError(t, err)
		require.Equal(t, uint64(100), executedIndex)

		prunedIndex, err := pruned.ProcessedIndex()
		require.NoError(t, err)
		require.Equal(t, uint64(0), prunedIndex)
	})
}
