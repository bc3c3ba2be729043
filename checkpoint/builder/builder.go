// Package builder assembles finalized checkpoints from certified effects.
//
// The builder is the producer side of the finalized feed: consensus output
// arrives as batches of certified transaction effects, the builder derives
// the canonical transaction order, persists the checkpoint and announces the
// header downstream. A checkpoint is only ever published after all of its
// data is durable.
package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ef-ds/deque"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/onstrata/strata-go/checkpoint/causalorder"
	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/module"
	"github.com/onstrata/strata-go/module/component"
	"github.com/onstrata/strata-go/module/counters"
	"github.com/onstrata/strata-go/module/irrecoverable"
	"github.com/onstrata/strata-go/module/lossyfeed"
	"github.com/onstrata/strata-go/storage"
	"github.com/onstrata/strata-go/utils/logging"
)

// DefaultRetryDelay is the pause between attempts to persist a checkpoint.
const DefaultRetryDelay = 100 * time.Millisecond

// Option is a functional option for configuring the builder.
type Option func(*Builder)

// WithRetryDelay overrides the pause between persistence retries.
func WithRetryDelay(delay time.Duration) Option {
	return func(b *Builder) {
		b.retryDelay = delay
	}
}

// pendingBatch is one committed batch awaiting checkpoint assembly.
type pendingBatch struct {
	effects    []*strata.TransactionEffects
	endOfEpoch *strata.EndOfEpochData
}

// Builder turns committed effect batches into finalized checkpoints. Batches
// are processed strictly in commit order by a single worker, which is what
// makes sequence numbers, the previous-digest chain and the running
// transaction total deterministic.
type Builder struct {
	log     zerolog.Logger
	metrics module.CheckpointBuilderMetrics

	checkpoints storage.Checkpoints
	contents    storage.CheckpointContents
	effects     storage.TransactionEffects

	built    *counters.PersistentStrictMonotonicCounter
	feed     *lossyfeed.Feed[*strata.Checkpoint]
	notifier module.Notifier

	retryDelay time.Duration

	mu      sync.Mutex
	pending deque.Deque // *pendingBatch, in commit order

	// The fields below are owned by the build worker.
	nextSequence      uint64
	previousDigest    strata.Identifier
	totalTransactions uint64
	currentEpoch      uint64

	component.Component
}

// New creates a checkpoint builder publishing to the given feed. The build
// position is restored from the consumer progress: a builder that never built
// anything starts at sequence 1 on top of the genesis state.
//
// No errors are expected during normal operation.
func New(
	log zerolog.Logger,
	metrics module.CheckpointBuilderMetrics,
	checkpoints storage.Checkpoints,
	contents storage.CheckpointContents,
	effects storage.TransactionEffects,
	built storage.ConsumerProgress,
	feed *lossyfeed.Feed[*strata.Checkpoint],
	opts ...Option,
) (*Builder, error) {
	builtCounter, err := counters.NewPersistentStrictMonotonicCounter(built, 0)
	if err != nil {
		return nil, fmt.Errorf("could not restore built watermark: %w", err)
	}

	b := &Builder{
		log:         log.With().Str("component", "checkpoint_builder").Logger(),
		metrics:     metrics,
		checkpoints: checkpoints,
		contents:    contents,
		effects:     effects,
		built:       builtCounter,
		feed:        feed,
		notifier:    module.NewNotifier(),
		retryDelay:  DefaultRetryDelay,
	}

	for _, opt := range opts {
		opt(b)
	}

	cm := component.NewComponentManagerBuilder().
		AddWorker(b.buildLoop).
		Build()
	b.Component = cm

	return b, nil
}

// HighestBuilt returns the sequence number of the last checkpoint that was
// fully persisted.
func (b *Builder) HighestBuilt() uint64 {
	return b.built.Value()
}

// Commit queues a batch of certified effects for checkpoint assembly. The
// batch forms exactly one checkpoint; its canonical transaction order is
// derived by the builder, not the caller. Empty batches are dropped, no
// empty checkpoints are built.
func (b *Builder) Commit(effects []*strata.TransactionEffects) {
	if len(effects) == 0 {
		return
	}
	b.enqueue(&pendingBatch{effects: effects})
}

// CommitEpochFinal queues the last batch of the current epoch. The resulting
// checkpoint carries the given end-of-epoch data and is built even when the
// batch is empty, since the epoch boundary must exist on the chain. next
// must not be nil.
func (b *Builder) CommitEpochFinal(effects []*strata.TransactionEffects, next *strata.EndOfEpochData) {
	b.enqueue(&pendingBatch{effects: effects, endOfEpoch: next})
}

func (b *Builder) enqueue(batch *pendingBatch) {
	b.mu.Lock()
	b.pending.PushBack(batch)
	b.mu.Unlock()
	b.notifier.Notify()
}

func (b *Builder) nextBatch() (*pendingBatch, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.pending.PopFront()
	if !ok {
		return nil, false
	}
	return v.(*pendingBatch), true
}

// buildLoop drains pending batches in commit order. The feed is closed when
// the worker exits, which signals downstream consumers to drain.
func (b *Builder) buildLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	defer b.feed.Close()

	err := b.loadState()
	if err != nil {
		ctx.Throw(fmt.Errorf("could not restore build position: %w", err))
		return
	}

	ready()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.notifier.Channel():
		}

		for {
			batch, ok := b.nextBatch()
			if !ok {
				break
			}
			err := b.build(ctx, batch)
			if err != nil {
				// shutdown interrupted the build; the batch is not
				// published and its checkpoint does not exist
				return
			}
		}
	}
}

// loadState restores the build position from the header at the built
// watermark.
func (b *Builder) loadState() error {
	built := b.built.Value()
	if built == 0 {
		// nothing built yet, start on top of the genesis state
		b.nextSequence = 1
		b.previousDigest = strata.ZeroID
		b.totalTransactions = 0
		b.currentEpoch = 0
		return nil
	}

	header, err := b.checkpoints.BySequence(built)
	if err != nil {
		return fmt.Errorf("could not load checkpoint at built watermark %d: %w", built, err)
	}

	b.nextSequence = built + 1
	b.previousDigest = header.ID()
	b.totalTransactions = header.NetworkTotalTransactions
	b.currentEpoch = header.Epoch
	if header.IsEpochFinal() {
		b.currentEpoch++
	}
	return nil
}

// build assembles, persists and publishes one checkpoint. Persistence is
// retried until it succeeds or shutdown cancels the context; the header is
// only published once everything is durable. The only expected error is the
// context error.
func (b *Builder) build(ctx irrecoverable.SignalerContext, batch *pendingBatch) error {
	start := time.Now()

	ordered := causalorder.Order(batch.effects)
	digests := make([]strata.Identifier, 0, len(ordered))
	for _, effects := range ordered {
		digests = append(digests, effects.TransactionDigest)
	}
	contents := strata.NewCheckpointContents(digests)

	checkpoint := &strata.Checkpoint{
		Epoch:                    b.currentEpoch,
		SequenceNumber:           b.nextSequence,
		ContentsID:               contents.ID(),
		PreviousDigest:           b.previousDigest,
		NetworkTotalTransactions: b.totalTransactions + uint64(len(digests)),
		EndOfEpoch:               batch.endOfEpoch,
	}
	seq := checkpoint.SequenceNumber

	// every step is idempotent, so the whole persist can be re-run
	attempt := 0
	err := retry.Do(ctx, retry.NewConstant(b.retryDelay), func(context.Context) error {
		if attempt > 0 {
			b.log.Warn().
				Int("attempt", attempt).
				Uint64("sequence", seq).
				Msg("retrying checkpoint persist")
		}
		attempt++

		err := b.effects.BatchStore(ordered)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("could not store effects: %w", err))
		}
		err = b.contents.Store(contents)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("could not store contents: %w", err))
		}
		err = b.checkpoints.Store(checkpoint)
		if errors.Is(err, storage.ErrDataMismatch) {
			// a different checkpoint is already finalized at this height
			return fmt.Errorf("conflicting checkpoint at sequence %d: %w", seq, err)
		}
		if err != nil {
			return retry.RetryableError(fmt.Errorf("could not store header: %w", err))
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		ctx.Throw(fmt.Errorf("could not persist checkpoint %d: %w", seq, err))
		return err
	}

	err = retry.Do(ctx, retry.NewConstant(b.retryDelay), func(context.Context) error {
		err := b.built.Set(seq)
		if errors.Is(err, counters.ErrIncorrectValue) {
			return err
		}
		if err != nil {
			b.log.Warn().Err(err).
				Uint64("sequence", seq).
				Msg("could not persist built watermark, retrying")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		ctx.Throw(fmt.Errorf("could not advance built watermark to %d: %w", seq, err))
		return err
	}

	b.nextSequence++
	b.previousDigest = checkpoint.ID()
	b.totalTransactions = checkpoint.NetworkTotalTransactions
	if checkpoint.IsEpochFinal() {
		b.currentEpoch++
	}

	b.metrics.CheckpointBuilt(seq, time.Since(start), len(digests))

	b.log.Info().
		Uint64("sequence", seq).
		Hex("checkpoint_id", logging.ID(checkpoint.ID())).
		Int("transactions", len(digests)).
		Bool("epoch_final", checkpoint.IsEpochFinal()).
		Msg("checkpoint built")

	b.feed.Publish(checkpoint)

	return nil
}
