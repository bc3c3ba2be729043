package builder_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onstrata/strata-go/checkpoint/executor"
	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/module"
	"github.com/onstrata/strata-go/module/irrecoverable"
	"github.com/onstrata/strata-go/module/metrics"
	bstorage "github.com/onstrata/strata-go/storage/badger"
	"github.com/onstrata/strata-go/utils/unittest"
)

// journalApplier records every applied transaction digest in order.
type journalApplier struct {
	mu      sync.Mutex
	applied []strata.Identifier
}

var _ executor.StateApplier = (*journalApplier)(nil)

func (a *journalApplier) Apply(_ context.Context, _ *strata.Checkpoint, effects *strata.TransactionEffects) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, effects.TransactionDigest)
	return nil
}

func (a *journalApplier) digests() []strata.Identifier {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]strata.Identifier(nil), a.applied...)
}

// journalTransitioner records the epoch-final checkpoints it was handed.
type journalTransitioner struct {
	mu     sync.Mutex
	finals []*strata.Checkpoint
}

var _ module.EpochTransitioner = (*journalTransitioner)(nil)

func (tr *journalTransitioner) TransitionEpoch(_ context.Context, final *strata.Checkpoint) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.finals = append(tr.finals, final)
	return nil
}

func (tr *journalTransitioner) transitions() []*strata.Checkpoint {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]*strata.Checkpoint(nil), tr.finals...)
}

// The full finalization pipeline: batches committed to the builder come out
// of an executor on the same feed, applied in canonical order, with the
// epoch transition running exactly once at the boundary.
func TestBuiltCheckpointsReplayThroughExecutor(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	h := newHarness(db)

	applier := &journalApplier{}
	epochs := &journalTransitioner{}

	ex, err := executor.New(
		unittest.Logger(),
		metrics.NewNoopCollector(),
		applier,
		h.checkpoints,
		h.contents,
		h.effects,
		bstorage.NewConsumerProgress(db, module.ConsumeProgressExecutedCheckpointSequence),
		h.feed,
		epochs,
		executor.WithTaskLimit(1),
		executor.WithRetryDelay(5*time.Millisecond),
	)
	require.NoError(t, err)

	// the pipeline is expected to run clean, so any thrown error fails the
	// test on the spot
	signalerCtx, cancel := irrecoverable.NewMockSignalerContextWithCancel(t, context.Background())
	ex.Start(signalerCtx)
	t.Cleanup(func() {
		cancel()
		unittest.RequireCloseBefore(t, ex.Done(), 5*time.Second, "executor did not shut down")
	})
	unittest.RequireCloseBefore(t, ex.Ready(), time.Second, "executor did not start")

	b := h.start(t)
	b.Commit(unittest.EffectsListFixture(3))
	b.CommitEpochFinal(unittest.EffectsListFixture(2), unittest.EndOfEpochDataFixture())
	b.Commit(unittest.EffectsListFixture(2))

	require.Eventually(t, func() bool {
		return ex.Watermark().HighestExecuted >= 3
	}, 5*time.Second, 10*time.Millisecond, "executor never caught up with the builder")

	// the applied order is exactly the concatenation of the built contents
	var expected []strata.Identifier
	for seq := uint64(1); seq <= 3; seq++ {
		header, err := h.checkpoints.BySequence(seq)
		require.NoError(t, err)
		contents, err := h.contents.ByID(header.ContentsID)
		require.NoError(t, err)
		expected = append(expected, contents.Transactions...)
	}
	require.Equal(t, expected, applier.digests())

	transitions := epochs.transitions()
	require.Len(t, transitions, 1)
	require.Equal(t, uint64(2), transitions[0].SequenceNumber)

	final, err := h.checkpoints.BySequence(3)
	require.NoError(t, err)
	require.Equal(t, uint64(1), final.Epoch)
}
