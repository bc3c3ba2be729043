package strata

// CheckpointContents is the ordered transaction list finalized by one
// checkpoint. The order is canonical: it is produced by the causal orderer
// when the checkpoint is built and must be applied verbatim on replay.
type CheckpointContents struct {
	Transactions []Identifier
}

func NewCheckpointContents(transactions []Identifier) *CheckpointContents {
	return &CheckpointContents{Transactions: transactions}
}

// ID returns the content digest committing to the ordered transaction list.
func (c *CheckpointContents) ID() Identifier {
	return MakeID(c)
}

// Len returns the number of transactions in the checkpoint.
func (c *CheckpointContents) Len() int {
	return len(c.Transactions)
}

// CommitteeMember is one entry of the validator committee taking over at an
// epoch boundary.
type CommitteeMember struct {
	NodeID Identifier
	Weight uint64
}

// EndOfEpochData is attached to the final checkpoint of an epoch. Its
// presence is what marks a checkpoint as epoch-ending; it carries the
// committee that takes over once the epoch transition completes.
type EndOfEpochData struct {
	NextCommittee       []CommitteeMember
	NextProtocolVersion uint64
}

// Checkpoint is the header of one finalized checkpoint. Headers delivered
// over the finalized feed have already passed signature and quorum
// verification upstream.
//
// Sequence numbers increase by exactly one per checkpoint and never reset
// at epoch boundaries. Sequence number 0 is reserved for the genesis state,
// so the first built checkpoint carries sequence number 1 with a zero
// PreviousDigest.
type Checkpoint struct {
	// Epoch is the epoch the checkpoint was finalized in.
	Epoch uint64
	// SequenceNumber is the position in the canonical checkpoint chain.
	SequenceNumber uint64
	// ContentsID commits to the ordered transaction list.
	ContentsID Identifier
	// PreviousDigest is the ID of the checkpoint with the preceding
	// sequence number, ZeroID for the first checkpoint.
	PreviousDigest Identifier
	// NetworkTotalTransactions is the running total of transactions
	// finalized up to and including this checkpoint.
	NetworkTotalTransactions uint64
	// EndOfEpoch is non-nil on the final checkpoint of an epoch.
	EndOfEpoch *EndOfEpochData
}

// ID returns the checkpoint digest.
func (c *Checkpoint) ID() Identifier {
	return MakeID(c)
}

// IsEpochFinal reports whether executing this checkpoint must be followed
// by an epoch transition before any later checkpoint may be dispatched.
func (c *Checkpoint) IsEpochFinal() bool {
	return c.EndOfEpoch != nil
}

// ExecutionWatermark tracks replay progress along the canonical chain.
type ExecutionWatermark struct {
	// HighestExecuted is the highest sequence number whose checkpoint, and
	// every checkpoint before it, has been fully replayed.
	HighestExecuted uint64
	// HighestSynced is the highest finalized sequence number observed so
	// far.
	HighestSynced uint64
}

// Lag returns how many finalized checkpoints are still awaiting replay.
func (w ExecutionWatermark) Lag() uint64 {
	if w.HighestSynced < w.HighestExecuted {
		return 0
	}
	return w.HighestSynced - w.HighestExecuted
}
