// Package executor replays finalized checkpoints against local state.
//
// The executor consumes checkpoint headers from the finalized feed, schedules
// one execution task per checkpoint on a bounded worker pool, and commits
// completed checkpoints strictly in sequence order. Execution of different
// checkpoints may overlap, but the executed watermark only ever advances
// contiguously: a checkpoint counts as executed once all checkpoints before
// it are executed as well.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/ef-ds/deque"
	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/module"
	"github.com/onstrata/strata-go/module/component"
	"github.com/onstrata/strata-go/module/counters"
	"github.com/onstrata/strata-go/module/irrecoverable"
	"github.com/onstrata/strata-go/module/lossyfeed"
	"github.com/onstrata/strata-go/storage"
	"github.com/onstrata/strata-go/utils/logging"
)

// DefaultRetryDelay is the pause between attempts to fetch checkpoint data
// that has not arrived in local storage yet.
const DefaultRetryDelay = 100 * time.Millisecond

// task is one scheduled checkpoint execution. The worker pool goroutine
// fills in the result fields and then closes done; the execution loop reads
// them only after done is closed.
type task struct {
	checkpoint *strata.Checkpoint

	transactions int
	duration     time.Duration
	err          error

	done chan struct{}
}

// Executor drives checkpoint replay. It runs two workers: one consumes the
// finalized feed and advances the highest synced watermark, the other
// schedules execution tasks in sequence order and commits their results.
type Executor struct {
	log     zerolog.Logger
	metrics module.CheckpointExecutorMetrics

	applier     StateApplier
	checkpoints storage.Checkpoints
	contents    storage.CheckpointContents
	effects     storage.TransactionEffects
	epochs      module.EpochTransitioner

	feed       *lossyfeed.Feed[*strata.Checkpoint]
	notifier   module.Notifier
	feedClosed *atomic.Bool

	executed      *counters.PersistentStrictMonotonicCounter
	highestSynced counters.StrictMonotonousCounter

	taskLimit  int
	retryDelay time.Duration

	// The fields below are owned by the execution loop worker and must not
	// be touched from any other goroutine.
	inflight     deque.Deque // *task, in increasing sequence order
	nextSequence uint64
	currentEpoch uint64
	awaitEpoch   bool

	component.Component
}

// New creates a checkpoint executor reading finalized headers from the given
// feed. The executed watermark is restored from the consumer progress; a
// consumer that was never initialized starts at sequence 0, the implicit
// genesis state.
//
// No errors are expected during normal operation.
func New(
	log zerolog.Logger,
	metrics module.CheckpointExecutorMetrics,
	applier StateApplier,
	checkpoints storage.Checkpoints,
	contents storage.CheckpointContents,
	effects storage.TransactionEffects,
	executed storage.ConsumerProgress,
	feed *lossyfeed.Feed[*strata.Checkpoint],
	epochs module.EpochTransitioner,
	opts ...Option,
) (*Executor, error) {
	executedCounter, err := counters.NewPersistentStrictMonotonicCounter(executed, 0)
	if err != nil {
		return nil, fmt.Errorf("could not restore executed watermark: %w", err)
	}

	e := &Executor{
		log:           log.With().Str("component", "checkpoint_executor").Logger(),
		metrics:       metrics,
		applier:       applier,
		checkpoints:   checkpoints,
		contents:      contents,
		effects:       effects,
		epochs:        epochs,
		feed:          feed,
		notifier:      module.NewNotifier(),
		feedClosed:    atomic.NewBool(false),
		executed:      executedCounter,
		highestSynced: counters.NewMonotonousCounter(executedCounter.Value()),
		taskLimit:     runtime.NumCPU() * 2,
		retryDelay:    DefaultRetryDelay,
	}

	for _, opt := range opts {
		opt(e)
	}

	cm := component.NewComponentManagerBuilder().
		AddWorker(e.processFeed).
		AddWorker(e.executeLoop).
		Build()
	e.Component = cm

	return e, nil
}

// Watermark returns a snapshot of the replay progress.
func (e *Executor) Watermark() strata.ExecutionWatermark {
	return strata.ExecutionWatermark{
		HighestExecuted: e.executed.Value(),
		HighestSynced:   e.highestSynced.Value(),
	}
}

// processFeed consumes the finalized checkpoint feed, advancing the highest
// synced watermark and waking the execution loop. Dropped feed items only
// cost the notification: the execution loop reads headers back from storage,
// so any later item covers the skipped range.
func (e *Executor) processFeed(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	sub := e.feed.Subscribe()
	ready()

	for {
		checkpoint, err := sub.Recv(ctx)
		if err != nil {
			var gap lossyfeed.GapError
			switch {
			case errors.As(err, &gap):
				e.log.Warn().
					Uint64("skipped", gap.Skipped).
					Msg("fell behind finalized checkpoint feed, recovering from storage")
				e.metrics.CheckpointFeedGap(gap.Skipped)
				continue
			case errors.Is(err, lossyfeed.ErrClosed):
				e.log.Info().Msg("finalized checkpoint feed closed")
				e.feedClosed.Store(true)
				e.notifier.Notify()
				return
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return
			default:
				ctx.Throw(fmt.Errorf("could not receive from finalized checkpoint feed: %w", err))
				return
			}
		}

		if e.highestSynced.Set(checkpoint.SequenceNumber) {
			e.metrics.HighestSyncedCheckpoint(checkpoint.SequenceNumber)
		}
		e.notifier.Notify()
	}
}

// executeLoop schedules and commits checkpoint executions. All scheduling
// and watermark state is owned by this single goroutine; the worker pool
// tasks communicate exclusively through their done channels.
func (e *Executor) executeLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	err := e.loadEpoch()
	if err != nil {
		ctx.Throw(fmt.Errorf("could not determine current epoch: %w", err))
		return
	}

	synced, err := e.recoverSynced()
	if err != nil {
		ctx.Throw(err)
		return
	}
	e.highestSynced.Set(synced)

	executed := e.executed.Value()
	e.nextSequence = executed + 1
	e.metrics.HighestExecutedCheckpoint(executed)
	e.metrics.HighestSyncedCheckpoint(e.highestSynced.Value())

	pool := workerpool.New(e.taskLimit)
	defer pool.StopWait()

	// armed by scheduleTasks when the scan hits a header that has not been
	// stored yet
	retryScan := time.NewTimer(e.retryDelay)
	if !retryScan.Stop() {
		<-retryScan.C
	}
	defer retryScan.Stop()

	ready()

	for {
		e.commitCompleted(ctx)
		e.scheduleTasks(ctx, pool, retryScan)

		if e.feedClosed.Load() && e.inflight.Len() == 0 {
			e.log.Info().Msg("in-flight checkpoints drained, stopping execution")
			return
		}

		// wait only on the lowest in-flight checkpoint; later tasks may
		// already be finished, but they cannot commit before the front does
		var frontDone <-chan struct{}
		if front, ok := e.inflight.Front(); ok {
			frontDone = front.(*task).done
		}

		select {
		case <-ctx.Done():
			return
		case <-e.notifier.Channel():
		case <-frontDone:
		case <-retryScan.C:
		}
	}
}

// loadEpoch restores the epoch of the next checkpoint to execute from the
// header at the executed watermark. If that checkpoint closed its epoch, the
// transition already ran before the watermark advanced, so replay resumes in
// the next epoch. A fresh node with nothing executed starts in epoch 0.
func (e *Executor) loadEpoch() error {
	executed := e.executed.Value()
	if executed == 0 {
		// sequence 0 is the implicit genesis state and is never stored
		e.currentEpoch = 0
		return nil
	}

	checkpoint, err := e.checkpoints.BySequence(executed)
	if err != nil {
		return fmt.Errorf("could not load checkpoint at executed watermark %d: %w", executed, err)
	}

	e.currentEpoch = checkpoint.Epoch
	if checkpoint.IsEpochFinal() {
		e.currentEpoch++
	}
	return nil
}

// recoverSynced walks the stored headers past the executed watermark. After
// a restart, storage may hold finalized checkpoints that will never see a
// fresh feed notification; they are executable right away.
func (e *Executor) recoverSynced() (uint64, error) {
	head := e.executed.Value()
	for {
		_, err := e.checkpoints.BySequence(head + 1)
		if errors.Is(err, storage.ErrNotFound) {
			return head, nil
		}
		if err != nil {
			return 0, fmt.Errorf("could not probe stored checkpoint at sequence %d: %w", head+1, err)
		}
		head++
	}
}

// scheduleTasks dispatches execution tasks for finalized checkpoints in
// sequence order, up to the task limit. The scan stops at the first sequence
// number whose header has not reached local storage yet and resumes via the
// retry timer, so a lagging header sync can delay replay but never cause a
// checkpoint to be skipped.
func (e *Executor) scheduleTasks(ctx irrecoverable.SignalerContext, pool *workerpool.WorkerPool, retryScan *time.Timer) {
	if e.feedClosed.Load() {
		return
	}

	highestSynced := e.highestSynced.Value()
	for e.nextSequence <= highestSynced && e.inflight.Len() < e.taskLimit && !e.awaitEpoch {
		seq := e.nextSequence

		checkpoint, err := e.checkpoints.BySequence(seq)
		if errors.Is(err, storage.ErrNotFound) {
			e.log.Debug().
				Uint64("sequence", seq).
				Msg("checkpoint header not yet available, delaying scan")
			if !retryScan.Stop() {
				select {
				case <-retryScan.C:
				default:
				}
			}
			retryScan.Reset(e.retryDelay)
			return
		}
		if err != nil {
			ctx.Throw(fmt.Errorf("could not look up checkpoint at sequence %d: %w", seq, err))
			return
		}

		if checkpoint.Epoch != e.currentEpoch {
			ctx.Throw(fmt.Errorf("checkpoint %x at sequence %d belongs to epoch %d, expected %d",
				checkpoint.ID(), seq, checkpoint.Epoch, e.currentEpoch))
			return
		}

		t := &task{
			checkpoint: checkpoint,
			done:       make(chan struct{}),
		}
		e.inflight.PushBack(t)
		e.nextSequence++

		if checkpoint.IsEpochFinal() {
			// no checkpoint of the next epoch may be dispatched before the
			// epoch transition has completed
			e.awaitEpoch = true
		}

		pool.Submit(func() {
			e.execute(ctx, t)
		})
	}
}

// commitCompleted pops finished tasks off the front of the in-flight queue
// and commits them. A finished task behind a still-running one stays queued,
// which keeps the executed watermark contiguous.
func (e *Executor) commitCompleted(ctx irrecoverable.SignalerContext) {
	for {
		front, ok := e.inflight.Front()
		if !ok {
			return
		}
		t := front.(*task)
		select {
		case <-t.done:
		default:
			// the lowest in-flight checkpoint is still executing
			return
		}
		e.inflight.PopFront()

		if t.err != nil {
			if errors.Is(t.err, context.Canceled) || ctx.Err() != nil {
				// shutdown aborted the task; the watermark stays put and
				// the checkpoint is executed again on the next start
				return
			}
			ctx.Throw(fmt.Errorf("execution of checkpoint %d failed: %w", t.checkpoint.SequenceNumber, t.err))
			return
		}

		err := e.commit(ctx, t)
		if err != nil {
			// shutdown interrupted the commit; the watermark is untouched
			// and the checkpoint is executed again on the next start
			return
		}
	}
}

// commit finishes one executed checkpoint: it runs the epoch transition if
// the checkpoint closes an epoch, then durably advances the executed
// watermark. commit only succeeds once the watermark is persisted, so that a
// checkpoint is never reported executed without being so on disk. The only
// expected error is the context error when shutdown interrupts the commit.
func (e *Executor) commit(ctx irrecoverable.SignalerContext, t *task) error {
	checkpoint := t.checkpoint
	seq := checkpoint.SequenceNumber

	if checkpoint.IsEpochFinal() {
		err := e.epochs.TransitionEpoch(ctx, checkpoint)
		if err != nil {
			ctx.Throw(fmt.Errorf("could not transition epoch after checkpoint %d: %w", seq, err))
			return err
		}
		e.currentEpoch = checkpoint.Epoch + 1
		e.awaitEpoch = false
		e.log.Info().
			Uint64("epoch", e.currentEpoch).
			Uint64("sequence", seq).
			Msg("epoch transition complete")
	}

	err := retry.Do(ctx, retry.NewConstant(e.retryDelay), func(context.Context) error {
		err := e.executed.Set(seq)
		if errors.Is(err, counters.ErrIncorrectValue) {
			return err
		}
		if err != nil {
			e.log.Warn().Err(err).
				Uint64("sequence", seq).
				Msg("could not persist executed watermark, retrying")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		ctx.Throw(fmt.Errorf("could not advance executed watermark to %d: %w", seq, err))
		return err
	}

	e.metrics.HighestExecutedCheckpoint(seq)
	e.metrics.CheckpointExecuted(seq, t.duration, t.transactions)

	e.log.Info().
		Uint64("sequence", seq).
		Hex("checkpoint_id", logging.ID(checkpoint.ID())).
		Int("transactions", t.transactions).
		Dur("duration", t.duration).
		Msg("checkpoint executed")

	return nil
}

// execute runs one checkpoint execution task on a worker pool goroutine. It
// fetches the checkpoint contents, resolves the certified effects of every
// transaction and applies them in canonical order. Data that has not arrived
// yet is awaited; execute only gives up when the context is cancelled or an
// unexpected error surfaces, recording the cause in t.err.
func (e *Executor) execute(ctx context.Context, t *task) {
	defer close(t.done)
	start := time.Now()

	contents, err := e.fetchContents(ctx, t.checkpoint)
	if err != nil {
		t.err = err
		return
	}

	resolved, err := e.resolveEffects(ctx, contents)
	if err != nil {
		t.err = err
		return
	}

	err = e.applyEffects(ctx, t.checkpoint, resolved)
	if err != nil {
		t.err = err
		return
	}

	t.transactions = contents.Len()
	t.duration = time.Since(start)
}

// fetchContents loads the transaction list the checkpoint header commits to.
// Contents are synced independently of headers, so absence is expected and
// retried until the data shows up.
func (e *Executor) fetchContents(ctx context.Context, checkpoint *strata.Checkpoint) (*strata.CheckpointContents, error) {
	lg := e.log.With().
		Uint64("sequence", checkpoint.SequenceNumber).
		Hex("contents_id", logging.ID(checkpoint.ContentsID)).
		Logger()

	var contents *strata.CheckpointContents
	attempt := 0
	err := retry.Do(ctx, retry.NewConstant(e.retryDelay), func(context.Context) error {
		if attempt > 0 {
			lg.Debug().Int("attempt", attempt).Msg("retrying checkpoint contents fetch")
			e.metrics.ExecutionRetried()
		}
		attempt++

		var err error
		contents, err = e.contents.ByID(checkpoint.ContentsID)
		if errors.Is(err, storage.ErrNotFound) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not fetch contents of checkpoint %d: %w", checkpoint.SequenceNumber, err)
	}
	return contents, nil
}

// resolveEffects looks up the certified effects of every transaction in the
// checkpoint, preserving the canonical order of the contents. Effects are
// certified independently of checkpoint finalization, so individual entries
// may trail the checkpoint and are awaited.
func (e *Executor) resolveEffects(ctx context.Context, contents *strata.CheckpointContents) ([]*strata.TransactionEffects, error) {
	resolved := make([]*strata.TransactionEffects, contents.Len())

	g, gCtx := errgroup.WithContext(ctx)
	for i, txDigest := range contents.Transactions {
		i := i
		txDigest := txDigest

		g.Go(func() error {
			attempt := 0
			return retry.Do(gCtx, retry.NewConstant(e.retryDelay), func(context.Context) error {
				if attempt > 0 {
					e.metrics.ExecutionRetried()
				}
				attempt++

				effects, err := e.effects.ByDigest(txDigest)
				if errors.Is(err, storage.ErrNotFound) {
					// the transaction has not been certified yet
					return retry.RetryableError(err)
				}
				if err != nil {
					return fmt.Errorf("could not resolve effects of transaction %x: %w", txDigest, err)
				}

				resolved[i] = effects
				return nil
			})
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// applyEffects feeds the resolved effects to the state applier in the exact
// order fixed by the checkpoint contents. Application failures are treated
// as transient and retried in place, which preserves the canonical order.
func (e *Executor) applyEffects(ctx context.Context, checkpoint *strata.Checkpoint, resolved []*strata.TransactionEffects) error {
	for _, txEffects := range resolved {
		txEffects := txEffects

		attempt := 0
		err := retry.Do(ctx, retry.NewConstant(e.retryDelay), func(context.Context) error {
			if attempt > 0 {
				e.log.Debug().
					Int("attempt", attempt).
					Hex("transaction", logging.ID(txEffects.TransactionDigest)).
					Msg("retrying transaction effects application")
				e.metrics.ExecutionRetried()
			}
			attempt++

			err := e.applier.Apply(ctx, checkpoint, txEffects)
			if err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("could not apply transaction %x of checkpoint %d: %w",
				txEffects.TransactionDigest, checkpoint.SequenceNumber, err)
		}
	}
	return nil
}
