// Package pruner trims old checkpoint data behind the executed watermark.
//
// Headers are kept forever as the chain of record. The bulky parts of a
// checkpoint, the ordered transaction list and the certified effects it
// references, are only retained for a window of recent checkpoints and
// removed once replay has moved far enough past them. Pruning runs at low
// priority: the worker sleeps between iterations and between batches, and
// every removal is idempotent so a crash mid-prune is harmless.
package pruner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/module"
	"github.com/onstrata/strata-go/module/component"
	"github.com/onstrata/strata-go/module/counters"
	"github.com/onstrata/strata-go/module/irrecoverable"
	"github.com/onstrata/strata-go/storage"
)

// WatermarkReader provides the replay progress the pruner trails behind.
type WatermarkReader interface {
	Watermark() strata.ExecutionWatermark
}

// Config holds the pruning knobs. The zero value is not valid, start from
// DefaultConfig.
type Config struct {
	// RetainCheckpoints is how many executed checkpoints keep their full
	// contents and effects. Checkpoints at sequence numbers up to
	// highestExecuted minus this window are pruned.
	RetainCheckpoints uint64
	// BatchSize is how many checkpoints are pruned between two advances of
	// the pruned watermark.
	BatchSize uint64
	// SleepAfterIteration is the pause between two scans for prunable
	// checkpoints. The worker sleeps before the first scan as well, so
	// pruning never competes with the replay path right after startup.
	SleepAfterIteration time.Duration
	// SleepAfterBatch is the pause between two batches within one scan.
	SleepAfterBatch time.Duration
}

func DefaultConfig() Config {
	return Config{
		RetainCheckpoints:   5000,
		BatchSize:           500,
		SleepAfterIteration: 5 * time.Minute,
		SleepAfterBatch:     100 * time.Millisecond,
	}
}

// Pruner removes contents and effects of checkpoints that have fallen out of
// the retention window. Its own pruned watermark tracks how far removal has
// progressed, so restarts resume where the previous run stopped.
type Pruner struct {
	log     zerolog.Logger
	metrics module.CheckpointPrunerMetrics
	config  Config

	checkpoints storage.Checkpoints
	contents    storage.CheckpointContents
	effects     storage.TransactionEffects
	watermark   WatermarkReader

	pruned *counters.PersistentStrictMonotonicCounter

	component.Component
}

// New creates a pruner trailing the given watermark by the configured
// retention window.
//
// No errors are expected during normal operation.
func New(
	log zerolog.Logger,
	metrics module.CheckpointPrunerMetrics,
	checkpoints storage.Checkpoints,
	contents storage.CheckpointContents,
	effects storage.TransactionEffects,
	pruned storage.ConsumerProgress,
	watermark WatermarkReader,
	config Config,
) (*Pruner, error) {
	if config.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}

	prunedCounter, err := counters.NewPersistentStrictMonotonicCounter(pruned, 0)
	if err != nil {
		return nil, fmt.Errorf("could not restore pruned watermark: %w", err)
	}

	p := &Pruner{
		log:         log.With().Str("component", "checkpoint_pruner").Logger(),
		metrics:     metrics,
		config:      config,
		checkpoints: checkpoints,
		contents:    contents,
		effects:     effects,
		watermark:   watermark,
		pruned:      prunedCounter,
	}

	cm := component.NewComponentManagerBuilder().
		AddWorker(p.pruneLoop).
		Build()
	p.Component = cm

	return p, nil
}

// HighestPruned returns the highest sequence number whose contents and
// effects have been removed.
func (p *Pruner) HighestPruned() uint64 {
	return p.pruned.Value()
}

func (p *Pruner) pruneLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.config.SleepAfterIteration):
		}

		err := p.pruneIteration(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ctx.Throw(fmt.Errorf("could not prune checkpoint data: %w", err))
			return
		}
	}
}

// pruneIteration removes everything between the pruned watermark and the end
// of the retention window, in batches.
func (p *Pruner) pruneIteration(ctx context.Context) error {
	next := p.pruned.Value() + 1
	upper := p.latestPrunable()
	if upper < next {
		return nil
	}

	p.log.Info().
		Uint64("next_to_prune", next).
		Uint64("latest_to_prune", upper).
		Msg("pruning old checkpoint data")

	for p.pruned.Value() < upper {
		err := p.pruneBatch(ctx, upper)
		if err != nil {
			return err
		}

		if p.pruned.Value() < upper {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.config.SleepAfterBatch):
			}
		}
	}

	return nil
}

// latestPrunable returns the highest sequence number outside the retention
// window, or 0 when the window still covers the whole chain.
func (p *Pruner) latestPrunable() uint64 {
	executed := p.watermark.Watermark().HighestExecuted
	if executed <= p.config.RetainCheckpoints {
		return 0
	}
	return executed - p.config.RetainCheckpoints
}

// pruneBatch prunes up to BatchSize checkpoints and then advances the pruned
// watermark past them.
func (p *Pruner) pruneBatch(ctx context.Context, upper uint64) error {
	start := time.Now()
	next := p.pruned.Value() + 1

	end := next + p.config.BatchSize - 1
	if end > upper {
		end = upper
	}

	for seq := next; seq <= end; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := p.pruneCheckpoint(seq)
		if err != nil {
			return fmt.Errorf("could not prune checkpoint %d: %w", seq, err)
		}
	}

	err := p.pruned.Set(end)
	if err != nil {
		return fmt.Errorf("could not advance pruned watermark to %d: %w", end, err)
	}

	p.metrics.Pruned(end, time.Since(start))

	p.log.Debug().
		Uint64("from", next).
		Uint64("to", end).
		Msg("pruned checkpoint batch")

	return nil
}

// pruneCheckpoint removes the contents and certified effects of one
// checkpoint. The contents are removed last: they are the manifest listing
// the effects, so a crash mid-removal leaves them in place for the next run.
func (p *Pruner) pruneCheckpoint(seq uint64) error {
	header, err := p.checkpoints.BySequence(seq)
	if err != nil {
		return fmt.Errorf("could not load checkpoint header: %w", err)
	}

	contents, err := p.contents.ByID(header.ContentsID)
	if errors.Is(err, storage.ErrNotFound) {
		// already removed by an earlier run that stopped before the
		// watermark advanced
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not load checkpoint contents: %w", err)
	}

	var result *multierror.Error
	for _, digest := range contents.Transactions {
		err = p.effects.Remove(digest)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("could not remove effects %v: %w", digest, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	err = p.contents.Remove(header.ContentsID)
	if err != nil {
		return fmt.Errorf("could not remove contents: %w", err)
	}

	return nil
}
