package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/require"

	"github.com/onstrata/strata-go/checkpoint/executor"
	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/module"
	"github.com/onstrata/strata-go/module/irrecoverable"
	"github.com/onstrata/strata-go/module/lossyfeed"
	"github.com/onstrata/strata-go/module/metrics"
	bstorage "github.com/onstrata/strata-go/storage/badger"
	"github.com/onstrata/strata-go/utils/unittest"
)

// event is one recorded interaction with the fakes below, in global order.
type event struct {
	kind   string // "apply" or "transition"
	seq    uint64
	digest strata.Identifier
}

type eventLog struct {
	mu     sync.Mutex
	events []event
}

func (l *eventLog) add(kind string, seq uint64, digest strata.Identifier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event{kind: kind, seq: seq, digest: digest})
}

func (l *eventLog) snapshot() []event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event(nil), l.events...)
}

// applied returns the digests applied for the given checkpoint, in order.
func (l *eventLog) applied(seq uint64) []strata.Identifier {
	var digests []strata.Identifier
	for _, ev := range l.snapshot() {
		if ev.kind == "apply" && ev.seq == seq {
			digests = append(digests, ev.digest)
		}
	}
	return digests
}

// fakeApplier journals every applied transaction. Individual transactions
// can be gated to hold an execution task open until the test releases it.
type fakeApplier struct {
	log *eventLog

	mu    sync.Mutex
	gates map[strata.Identifier]chan struct{}
}

var _ executor.StateApplier = (*fakeApplier)(nil)

func newFakeApplier(log *eventLog) *fakeApplier {
	return &fakeApplier{
		log:   log,
		gates: make(map[strata.Identifier]chan struct{}),
	}
}

// gate makes Apply block on the returned channel for the given transaction.
func (a *fakeApplier) gate(digest strata.Identifier) chan struct{} {
	gate := make(chan struct{})
	a.mu.Lock()
	a.gates[digest] = gate
	a.mu.Unlock()
	return gate
}

func (a *fakeApplier) Apply(ctx context.Context, checkpoint *strata.Checkpoint, effects *strata.TransactionEffects) error {
	a.mu.Lock()
	gate := a.gates[effects.TransactionDigest]
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a.log.add("apply", checkpoint.SequenceNumber, effects.TransactionDigest)
	return nil
}

// fakeTransitioner journals epoch transitions and can be made to fail.
type fakeTransitioner struct {
	log *eventLog
	err error

	mu     sync.Mutex
	finals []*strata.Checkpoint
}

var _ module.EpochTransitioner = (*fakeTransitioner)(nil)

func (f *fakeTransitioner) TransitionEpoch(_ context.Context, final *strata.Checkpoint) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.finals = append(f.finals, final)
	f.mu.Unlock()
	f.log.add("transition", final.SequenceNumber, strata.ZeroID)
	return nil
}

func (f *fakeTransitioner) transitions() []*strata.Checkpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*strata.Checkpoint(nil), f.finals...)
}

// harness bundles the storage layer and fakes an executor runs against.
type harness struct {
	feed    *lossyfeed.Feed[*strata.Checkpoint]
	log     *eventLog
	applier *fakeApplier
	epochs  *fakeTransitioner

	db          *badger.DB
	checkpoints *bstorage.Checkpoints
	contents    *bstorage.CheckpointContents
	effects     *bstorage.TransactionEffects
}

func newHarness(db *badger.DB) *harness {
	collector := metrics.NewNoopCollector()
	log := &eventLog{}
	return &harness{
		feed:        lossyfeed.New[*strata.Checkpoint](16),
		log:         log,
		applier:     newFakeApplier(log),
		epochs:      &fakeTransitioner{log: log},
		db:          db,
		checkpoints: bstorage.NewCheckpoints(collector, db),
		contents:    bstorage.NewCheckpointContents(collector, db),
		effects:     bstorage.NewTransactionEffects(collector, db),
	}
}

func (h *harness) storeHeaders(t *testing.T, chain *unittest.CheckpointChain, seqs ...uint64) {
	for _, seq := range seqs {
		header, _, _ := chain.BySequence(seq)
		require.NoError(t, h.checkpoints.Store(header))
	}
}

func (h *harness) storeData(t *testing.T, chain *unittest.CheckpointChain, seqs ...uint64) {
	for _, seq := range seqs {
		_, contents, effects := chain.BySequence(seq)
		require.NoError(t, h.contents.Store(contents))
		require.NoError(t, h.effects.BatchStore(effects))
	}
}

func (h *harness) storeAll(t *testing.T, chain *unittest.CheckpointChain, seqs ...uint64) {
	h.storeHeaders(t, chain, seqs...)
	h.storeData(t, chain, seqs...)
}

// start spins up an executor over the harness storage and registers a
// cleanup that shuts it down and fails the test on any thrown error.
func (h *harness) start(t *testing.T, opts ...executor.Option) *executor.Executor {
	ex, errChan := h.startManually(t, opts...)

	t.Cleanup(func() {
		select {
		case err := <-errChan:
			require.NoError(t, err, "executor threw an irrecoverable error")
		default:
		}
	})

	return ex
}

// startManually starts an executor and hands the irrecoverable error channel
// to the caller, for tests that expect a fatal error.
func (h *harness) startManually(t *testing.T, opts ...executor.Option) (*executor.Executor, <-chan error) {
	progress := bstorage.NewConsumerProgress(h.db, module.ConsumeProgressExecutedCheckpointSequence)

	opts = append([]executor.Option{executor.WithRetryDelay(5 * time.Millisecond)}, opts...)
	ex, err := executor.New(
		unittest.Logger(),
		metrics.NewNoopCollector(),
		h.applier,
		h.checkpoints,
		h.contents,
		h.effects,
		progress,
		h.feed,
		h.epochs,
		opts...,
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)
	ex.Start(signalerCtx)

	t.Cleanup(func() {
		cancel()
		unittest.RequireCloseBefore(t, ex.Done(), 5*time.Second, "executor did not shut down")
	})

	unittest.RequireCloseBefore(t, ex.Ready(), time.Second, "executor did not start")
	return ex, errChan
}

func requireExecutedReaches(t *testing.T, ex *executor.Executor, seq uint64) {
	require.Eventually(t, func() bool {
		return ex.Watermark().HighestExecuted >= seq
	}, 5*time.Second, 10*time.Millisecond, "executed watermark never reached %d", seq)
}

func seqRange(from, to uint64) []uint64 {
	out := make([]uint64, 0, to-from+1)
	for seq := from; seq <= to; seq++ {
		out = append(out, seq)
	}
	return out
}

// With a task limit of one, checkpoints execute strictly one after another
// and every transaction is applied in the exact order fixed by the contents.
func TestExecutesInCanonicalOrder(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	chain := unittest.CheckpointChainFixture(3)
	h := newHarness(db)
	h.storeAll(t, chain, seqRange(1, 3)...)

	ex := h.start(t, executor.WithTaskLimit(1))
	requireExecutedReaches(t, ex, 3)

	var expected []strata.Identifier
	for _, contents := range chain.Contents {
		expected = append(expected, contents.Transactions...)
	}
	var got []strata.Identifier
	for _, ev := range h.log.snapshot() {
		require.Equal(t, "apply", ev.kind)
		got = append(got, ev.digest)
	}
	require.Equal(t, expected, got)
}

// The executed watermark only advances contiguously: with checkpoints 7 and 8
// both in flight and 8 finishing first, the watermark stays at 6 until 7
// completes, then jumps straight to 8.
func TestWatermarkAdvancesContiguously(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	chain := unittest.CheckpointChainFixture(8)
	h := newHarness(db)
	h.storeHeaders(t, chain, seqRange(1, 8)...)
	h.storeData(t, chain, 7, 8)

	progress := bstorage.NewConsumerProgress(db, module.ConsumeProgressExecutedCheckpointSequence)
	require.NoError(t, progress.InitProcessedIndex(6))

	// hold checkpoint 7 open on its first transaction
	_, _, effects7 := chain.BySequence(7)
	gate := h.applier.gate(effects7[0].TransactionDigest)

	ex := h.start(t, executor.WithTaskLimit(4))

	// checkpoint 8 finishes executing while 7 is stuck
	_, contents8, _ := chain.BySequence(8)
	require.Eventually(t, func() bool {
		return len(h.log.applied(8)) == contents8.Len()
	}, 5*time.Second, 10*time.Millisecond, "checkpoint 8 was never executed")

	require.Equal(t, uint64(6), ex.Watermark().HighestExecuted)

	close(gate)
	requireExecutedReaches(t, ex, 8)
}

// Contents and effects may trail the header sync. Execution of the affected
// checkpoint retries until the data arrives, without anything being skipped.
func TestRetriesUntilDataAvailable(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	chain := unittest.CheckpointChainFixture(3)
	h := newHarness(db)
	h.storeHeaders(t, chain, seqRange(1, 3)...)
	h.storeData(t, chain, 1, 3)

	ex := h.start(t)
	requireExecutedReaches(t, ex, 1)

	// checkpoint 2 has no contents yet, so the watermark must hold
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, uint64(1), ex.Watermark().HighestExecuted)

	h.storeData(t, chain, 2)
	requireExecutedReaches(t, ex, 3)
}

// A header missing from storage blocks the scan at its sequence number until
// it arrives, even when later headers are already known.
func TestMissingHeaderBlocksScan(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	chain := unittest.CheckpointChainFixture(5)
	h := newHarness(db)
	h.storeHeaders(t, chain, 1, 2, 4, 5)
	h.storeData(t, chain, seqRange(1, 5)...)

	ex := h.start(t, executor.WithTaskLimit(4))

	// only the newest checkpoint is announced; storage covers the rest
	header5, _, _ := chain.BySequence(5)
	h.feed.Publish(header5)

	requireExecutedReaches(t, ex, 2)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, uint64(2), ex.Watermark().HighestExecuted)

	h.storeHeaders(t, chain, 3)
	requireExecutedReaches(t, ex, 5)
}

// A single feed notification is enough to execute every stored checkpoint up
// to its sequence number, so dropped notifications are recovered from
// storage.
func TestRecoversSkippedNotificationsFromStorage(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	chain := unittest.CheckpointChainFixture(5)
	h := newHarness(db)

	ex := h.start(t, executor.WithTaskLimit(2))
	h.storeAll(t, chain, seqRange(1, 5)...)

	header5, _, _ := chain.BySequence(5)
	h.feed.Publish(header5)

	requireExecutedReaches(t, ex, 5)
	require.Equal(t, uint64(5), ex.Watermark().HighestSynced)
}

// A burst of announcements can overflow the subscription buffer and collapse
// into a gap. Execution still covers every checkpoint in order, because the
// scan reads headers from storage rather than trusting the feed.
func TestExecutesAcrossFeedGap(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	chain := unittest.CheckpointChainFixture(15)
	h := newHarness(db)
	h.feed = lossyfeed.New[*strata.Checkpoint](1)
	h.storeAll(t, chain, seqRange(1, 10)...)

	progress := bstorage.NewConsumerProgress(db, module.ConsumeProgressExecutedCheckpointSequence)
	require.NoError(t, progress.InitProcessedIndex(10))

	// with the retry timer effectively disabled, only the feed can wake the
	// scan once it has hit the missing checkpoint 11
	ex := h.start(t, executor.WithRetryDelay(time.Hour), executor.WithTaskLimit(2))
	require.Equal(t, uint64(10), ex.Watermark().HighestExecuted)

	h.storeAll(t, chain, seqRange(11, 15)...)
	for _, seq := range seqRange(11, 15) {
		header, _, _ := chain.BySequence(seq)
		h.feed.Publish(header)
	}

	requireExecutedReaches(t, ex, 15)
	require.Equal(t, uint64(15), ex.Watermark().HighestSynced)

	for _, seq := range seqRange(11, 15) {
		_, contents, _ := chain.BySequence(seq)
		require.Equal(t, contents.Transactions, h.log.applied(seq))
	}
}

// The epoch transition runs after the final checkpoint of the epoch is
// applied and before any checkpoint of the next epoch starts executing.
func TestEpochTransitionOrdering(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	chain := unittest.CheckpointChainFixture(4, unittest.ChainWithEpochFinalAt(2))
	h := newHarness(db)
	h.storeAll(t, chain, seqRange(1, 4)...)

	ex := h.start(t, executor.WithTaskLimit(4))
	requireExecutedReaches(t, ex, 4)

	transitions := h.epochs.transitions()
	require.Len(t, transitions, 1)
	require.Equal(t, uint64(2), transitions[0].SequenceNumber)

	// every apply of the old epoch precedes the transition, every apply
	// of the new epoch follows it
	events := h.log.snapshot()
	transitionAt := -1
	for i, ev := range events {
		if ev.kind == "transition" {
			transitionAt = i
		}
	}
	require.NotEqual(t, -1, transitionAt)
	for i, ev := range events {
		if ev.kind != "apply" {
			continue
		}
		if ev.seq <= 2 {
			require.Less(t, i, transitionAt, "apply of checkpoint %d after epoch transition", ev.seq)
		} else {
			require.Greater(t, i, transitionAt, "apply of checkpoint %d before epoch transition", ev.seq)
		}
	}
}

// After a restart right at an epoch boundary, replay resumes in the next
// epoch without running the transition again.
func TestRestartAtEpochBoundary(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	chain := unittest.CheckpointChainFixture(4, unittest.ChainWithEpochFinalAt(2))

	h1 := newHarness(db)
	h1.storeAll(t, chain, 1, 2)
	ex1, errChan1 := h1.startManually(t)
	requireExecutedReaches(t, ex1, 2)
	require.Len(t, h1.epochs.transitions(), 1)

	// shut the first executor down before starting the second
	h1.feed.Close()
	unittest.RequireCloseBefore(t, ex1.Done(), 5*time.Second, "first executor did not drain")
	select {
	case err := <-errChan1:
		require.NoError(t, err)
	default:
	}

	h2 := newHarness(db)
	h2.storeAll(t, chain, 3, 4)

	// hold checkpoint 3 so the restored watermark can be observed
	_, _, effects3 := chain.BySequence(3)
	gate := h2.applier.gate(effects3[0].TransactionDigest)

	ex2 := h2.start(t)
	require.Equal(t, uint64(2), ex2.Watermark().HighestExecuted)

	close(gate)
	requireExecutedReaches(t, ex2, 4)
	require.Empty(t, h2.epochs.transitions(), "epoch transition must not run twice")
}

// Closing the feed lets in-flight checkpoints finish and then stops the
// executor without an error.
func TestDrainsOnFeedClose(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	chain := unittest.CheckpointChainFixture(2)
	h := newHarness(db)
	h.storeAll(t, chain, 1, 2)

	ex := h.start(t)
	requireExecutedReaches(t, ex, 2)

	h.feed.Close()
	unittest.RequireCloseBefore(t, ex.Done(), 5*time.Second, "executor did not drain after feed close")
	require.Equal(t, uint64(2), ex.Watermark().HighestExecuted)
}

// A stored checkpoint whose epoch disagrees with the replay position is a
// sign of state divergence and must take the executor down.
func TestEpochMismatchIsFatal(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	h := newHarness(db)
	wrong := unittest.CheckpointFixture(unittest.WithSequence(1), unittest.WithEpoch(5))
	require.NoError(t, h.checkpoints.Store(wrong))

	_, errChan := h.startManually(t)

	select {
	case err := <-errChan:
		require.Error(t, err)
		require.Contains(t, err.Error(), "epoch")
	case <-time.After(5 * time.Second):
		t.Fatal("expected an irrecoverable error for the epoch mismatch")
	}
}

// A failing epoch transition is irrecoverable: the node cannot follow the
// chain past the boundary.
func TestEpochTransitionFailureIsFatal(t *testing.T) {
	db := unittest.TempBadgerDB(t)
	chain := unittest.CheckpointChainFixture(2, unittest.ChainWithEpochFinalAt(2))
	h := newHarness(db)
	h.storeAll(t, chain, 1, 2)
	h.epochs.err = errors.New("next committee unavailable")

	_, errChan := h.startManually(t)

	select {
	case err := <-errChan:
		require.Error(t, err)
		require.Contains(t, err.Error(), "could not transition epoch")
	case <-time.After(5 * time.Second):
		t.Fatal("expected an irrecoverable error for the failed transition")
	}
}
