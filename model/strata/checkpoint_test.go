package strata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/utils/unittest"
)

func TestCheckpointContentsID(t *testing.T) {
	digests := unittest.IdentifierListFixture(4)

	contents := strata.NewCheckpointContents(digests)
	same := strata.NewCheckpointContents(digests)
	assert.Equal(t, contents.ID(), same.ID())

	// the transaction order is part of the identity
	reversed := make([]strata.Identifier, len(digests))
	for i, id := range digests {
		reversed[len(digests)-1-i] = id
	}
	flipped := strata.NewCheckpointContents(reversed)
	assert.NotEqual(t, contents.ID(), flipped.ID())
}

func TestCheckpointID(t *testing.T) {
	checkpoint := unittest.CheckpointFixture()

	assert.Equal(t, checkpoint.ID(), checkpoint.ID())

	// any header field change produces a different identity
	altered := *checkpoint
	altered.SequenceNumber++
	assert.NotEqual(t, checkpoint.ID(), altered.ID())
}

func TestCheckpointIsEpochFinal(t *testing.T) {
	checkpoint := unittest.CheckpointFixture()
	assert.False(t, checkpoint.IsEpochFinal())

	final := unittest.CheckpointFixture(unittest.WithEndOfEpoch())
	assert.True(t, final.IsEpochFinal())
}

func TestWatermarkLag(t *testing.T) {
	assert.Equal(t, uint64(5), strata.ExecutionWatermark{HighestExecuted: 10, HighestSynced: 15}.Lag())
	assert.Equal(t, uint64(0), strata.ExecutionWatermark{HighestExecuted: 10, HighestSynced: 10}.Lag())

	// the sync watermark can trail briefly right after startup
	assert.Equal(t, uint64(0), strata.ExecutionWatermark{HighestExecuted: 10, HighestSynced: 3}.Lag())
}
