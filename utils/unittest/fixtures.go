package unittest

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/onstrata/strata-go/model/strata"
)

func IdentifierFixture() strata.Identifier {
	var id strata.Identifier
	_, _ = crand.Read(id[:])
	return id
}

func IdentifierListFixture(n int) strata.IdentifierList {
	list := make(strata.IdentifierList, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, IdentifierFixture())
	}
	return list
}

// IdentifierForIndex returns a deterministic identifier whose byte-wise
// order matches the numeric order of the index. Tests that need digests
// with a known relative order use these in place of random identifiers.
func IdentifierForIndex(index uint64) strata.Identifier {
	var id strata.Identifier
	binary.BigEndian.PutUint64(id[:8], index)
	return id
}

// ObjectKeyFixture returns a key for a random object at version 1.
func ObjectKeyFixture() strata.ObjectKey {
	return strata.ObjectKey{
		ObjectID: IdentifierFixture(),
		Version:  1,
	}
}

type EffectsOpt func(*strata.TransactionEffects)

func WithEffectsDigest(digest strata.Identifier) EffectsOpt {
	return func(effects *strata.TransactionEffects) {
		effects.TransactionDigest = digest
	}
}

func WithDependencies(deps ...strata.Identifier) EffectsOpt {
	return func(effects *strata.TransactionEffects) {
		effects.Dependencies = append(effects.Dependencies, deps...)
	}
}

// WithSharedReads marks the effects as having read the given object
// versions under shared access.
func WithSharedReads(keys ...strata.ObjectKey) EffectsOpt {
	return func(effects *strata.TransactionEffects) {
		for _, key := range keys {
			effects.SharedObjects = append(effects.SharedObjects, strata.SharedObjectRef{
				ObjectID: key.ObjectID,
				Version:  key.Version,
			})
		}
	}
}

// WithOverwrites marks the effects as having accessed the given object
// versions under shared access and written a newer version of each.
func WithOverwrites(keys ...strata.ObjectKey) EffectsOpt {
	return func(effects *strata.TransactionEffects) {
		for _, key := range keys {
			effects.SharedObjects = append(effects.SharedObjects, strata.SharedObjectRef{
				ObjectID: key.ObjectID,
				Version:  key.Version,
			})
		}
		effects.ModifiedAtVersions = append(effects.ModifiedAtVersions, keys...)
	}
}

func WithStatus(status strata.ExecutionStatus) EffectsOpt {
	return func(effects *strata.TransactionEffects) {
		effects.Status = status
	}
}

func EffectsFixture(opts ...EffectsOpt) *strata.TransactionEffects {
	effects := &strata.TransactionEffects{
		TransactionDigest: IdentifierFixture(),
		Status:            strata.ExecutionStatusSuccess,
	}
	for _, opt := range opts {
		opt(effects)
	}
	return effects
}

func EffectsListFixture(n int) []*strata.TransactionEffects {
	list := make([]*strata.TransactionEffects, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, EffectsFixture())
	}
	return list
}

type CheckpointOpt func(*strata.Checkpoint)

func WithSequence(seq uint64) CheckpointOpt {
	return func(checkpoint *strata.Checkpoint) {
		checkpoint.SequenceNumber = seq
	}
}

func WithEpoch(epoch uint64) CheckpointOpt {
	return func(checkpoint *strata.Checkpoint) {
		checkpoint.Epoch = epoch
	}
}

func WithContentsID(contentsID strata.Identifier) CheckpointOpt {
	return func(checkpoint *strata.Checkpoint) {
		checkpoint.ContentsID = contentsID
	}
}

func WithPreviousDigest(previous strata.Identifier) CheckpointOpt {
	return func(checkpoint *strata.Checkpoint) {
		checkpoint.PreviousDigest = previous
	}
}

// EndOfEpochDataFixture returns a handover to a small random committee.
func EndOfEpochDataFixture() *strata.EndOfEpochData {
	return &strata.EndOfEpochData{
		NextCommittee: []strata.CommitteeMember{
			{NodeID: IdentifierFixture(), Weight: 100},
			{NodeID: IdentifierFixture(), Weight: 100},
		},
		NextProtocolVersion: 1,
	}
}

// WithEndOfEpoch marks the checkpoint as the final checkpoint of its epoch,
// handing over to a small random committee.
func WithEndOfEpoch() CheckpointOpt {
	return func(checkpoint *strata.Checkpoint) {
		checkpoint.EndOfEpoch = EndOfEpochDataFixture()
	}
}

func CheckpointFixture(opts ...CheckpointOpt) *strata.Checkpoint {
	checkpoint := &strata.Checkpoint{
		Epoch:                    0,
		SequenceNumber:           Uint64InRange(1, 1000),
		ContentsID:               IdentifierFixture(),
		PreviousDigest:           IdentifierFixture(),
		NetworkTotalTransactions: Uint64InRange(1, 100000),
	}
	for _, opt := range opts {
		opt(checkpoint)
	}
	return checkpoint
}

func CheckpointContentsFixture(n int) *strata.CheckpointContents {
	return strata.NewCheckpointContents(IdentifierListFixture(n))
}

// Uint64InRange returns a uint64 value drawn from [min, max].
func Uint64InRange(min, max uint64) uint64 {
	var buf [8]byte
	_, _ = crand.Read(buf[:])
	return min + binary.BigEndian.Uint64(buf[:])%(max-min+1)
}

// CheckpointChain is a connected run of finalized checkpoints together with
// their contents and the certified effects of every listed transaction.
// Slices are parallel: Contents[i] and Effects[i] belong to Checkpoints[i].
type CheckpointChain struct {
	Checkpoints []*strata.Checkpoint
	Contents    []*strata.CheckpointContents
	Effects     [][]*strata.TransactionEffects
}

// BySequence returns the chain entry with the given sequence number.
func (c *CheckpointChain) BySequence(seq uint64) (*strata.Checkpoint, *strata.CheckpointContents, []*strata.TransactionEffects) {
	first := c.Checkpoints[0].SequenceNumber
	i := int(seq - first)
	if i < 0 || i >= len(c.Checkpoints) {
		panic(fmt.Sprintf("sequence %d outside of chain fixture [%d, %d]", seq, first, first+uint64(len(c.Checkpoints))-1))
	}
	return c.Checkpoints[i], c.Contents[i], c.Effects[i]
}

type chainConfig struct {
	transactionsPer int
	epochFinalAt    map[uint64]struct{}
}

type ChainOpt func(*chainConfig)

// ChainWithTransactionsPer sets how many transactions each checkpoint of the
// fixture finalizes.
func ChainWithTransactionsPer(n int) ChainOpt {
	return func(config *chainConfig) {
		config.transactionsPer = n
	}
}

// ChainWithEpochFinalAt marks the checkpoints with the given sequence
// numbers as epoch-ending. Later checkpoints carry the incremented epoch.
func ChainWithEpochFinalAt(seqs ...uint64) ChainOpt {
	return func(config *chainConfig) {
		for _, seq := range seqs {
			config.epochFinalAt[seq] = struct{}{}
		}
	}
}

// CheckpointChainFixture builds n consecutive finalized checkpoints starting
// at sequence 1, linked through PreviousDigest, each finalizing a batch of
// freshly certified transactions.
func CheckpointChainFixture(n int, opts ...ChainOpt) *CheckpointChain {
	config := chainConfig{
		transactionsPer: 3,
		epochFinalAt:    make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(&config)
	}

	chain := &CheckpointChain{}
	previous := strata.ZeroID
	epoch := uint64(0)
	total := uint64(0)

	for seq := uint64(1); seq <= uint64(n); seq++ {
		effects := EffectsListFixture(config.transactionsPer)
		digests := make([]strata.Identifier, 0, len(effects))
		for _, e := range effects {
			digests = append(digests, e.ID())
		}
		contents := strata.NewCheckpointContents(digests)
		total += uint64(len(digests))

		checkpoint := CheckpointFixture(
			WithSequence(seq),
			WithEpoch(epoch),
			WithContentsID(contents.ID()),
			WithPreviousDigest(previous),
		)
		checkpoint.NetworkTotalTransactions = total
		if _, final := config.epochFinalAt[seq]; final {
			WithEndOfEpoch()(checkpoint)
			epoch++
		}

		chain.Checkpoints = append(chain.Checkpoints, checkpoint)
		chain.Contents = append(chain.Contents, contents)
		chain.Effects = append(chain.Effects, effects)
		previous = checkpoint.ID()
	}

	return chain
}
