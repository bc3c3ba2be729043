package counters

import (
	"errors"
	"fmt"

	"github.com/onstrata/strata-go/storage"
)

// PersistentStrictMonotonicCounter represents the consumer progress with a
// strict monotonic counter.
type PersistentStrictMonotonicCounter struct {
	consumerProgress storage.ConsumerProgress

	// used to skip values that are lower than the current value
	counter StrictMonotonousCounter
}

// NewPersistentStrictMonotonicCounter creates a new PersistentStrictMonotonicCounter.
// If the consumer progress has never been initialized, the default index is
// inserted into the storage layer and used as the initial counter value.
// The consumer progress and associated db entry must not be accessed outside
// of calls to the returned object, otherwise the state may become inconsistent.
//
// No errors are expected during normal operation.
func NewPersistentStrictMonotonicCounter(consumerProgress storage.ConsumerProgress, defaultIndex uint64) (*PersistentStrictMonotonicCounter, error) {
	m := &PersistentStrictMonotonicCounter{
		consumerProgress: consumerProgress,
	}

	// sync with storage for the processed index to ensure the consistency
	value, err := m.consumerProgress.ProcessedIndex()
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("could not read consumer progress: %w", err)
		}
		err = m.consumerProgress.InitProcessedIndex(defaultIndex)
		if err != nil {
			return nil, fmt.Errorf("could not init consumer progress: %w", err)
		}
		value = defaultIndex
	}

	m.counter = NewMonotonousCounter(value)

	return m, nil
}

// Set sets the processed index, ensuring it is strictly monotonically
// increasing, and persists it. Set must not be called concurrently; the
// counter supports exactly one writer.
//
// Expected errors during normal operation:
//   - counters.ErrIncorrectValue if the value is lower than or equal to the
//     counter's current value
//
// The in-memory counter is only advanced once the new value has been
// persisted, so a storage failure leaves the counter unchanged and the call
// can simply be retried.
func (m *PersistentStrictMonotonicCounter) Set(processed uint64) error {
	if processed <= m.counter.Value() {
		return ErrIncorrectValue
	}
	err := m.consumerProgress.SetProcessedIndex(processed)
	if err != nil {
		return fmt.Errorf("could not persist processed index: %w", err)
	}
	m.counter.Set(processed)
	return nil
}

// Value loads the current stored index.
//
// No errors are expected during normal operation.
func (m *PersistentStrictMonotonicCounter) Value() uint64 {
	return m.counter.Value()
}
