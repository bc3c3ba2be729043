package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/utils/unittest"
)

func TestCodecRoundTrip(t *testing.T) {
	checkpoint := unittest.CheckpointFixture()

	val, err := encodeEntity(checkpoint)
	require.NoError(t, err)

	var decoded strata.Checkpoint
	err = decodeValue(val, &decoded)
	require.NoError(t, err)
	assert.Equal(t, checkpoint, &decoded)
}

func TestCodecCompressDisabled(t *testing.T) {
	defer func() { compressEnabled = true }()

	checkpoint := unittest.CheckpointFixture()

	setCompressDisabled()
	raw, err := encodeEntity(checkpoint)
	require.NoError(t, err)

	var decoded strata.Checkpoint
	err = decodeValue(raw, &decoded)
	require.NoError(t, err)
	assert.Equal(t, checkpoint, &decoded)

	// an uncompressed value read with compression enabled is detected, so a
	// database written before enabling compression is not silently misread
	compressEnabled = true
	err = decodeValue(raw, &decoded)
	require.Error(t, err)
	assert.True(t, isErrUncompressedValue(err))
}
