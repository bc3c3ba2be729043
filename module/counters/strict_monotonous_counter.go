package counters

import (
	"errors"

	"go.uber.org/atomic"
)

// ErrIncorrectValue indicates that a processed value is lower than or equal
// to the currently stored one.
var ErrIncorrectValue = errors.New("incorrect value")

// StrictMonotonousCounter is a helper struct which implements a strict
// monotonous counter. It does not allow setting a value which is lower than
// or equal to the already stored one. The counter is implemented solely with
// non-blocking atomic operations for concurrency safety.
type StrictMonotonousCounter struct {
	atomicCounter *atomic.Uint64
}

// NewMonotonousCounter creates a new counter with the given initial value.
func NewMonotonousCounter(initialValue uint64) StrictMonotonousCounter {
	return StrictMonotonousCounter{
		atomicCounter: atomic.NewUint64(initialValue),
	}
}

// Set updates the value of the counter if and only if it's strictly larger
// than the value which is already stored. Returns true if the update was
// successful or false if the stored value is larger.
func (c StrictMonotonousCounter) Set(newValue uint64) bool {
	for {
		oldValue := c.atomicCounter.Load()
		if newValue <= oldValue {
			return false
		}
		if c.atomicCounter.CompareAndSwap(oldValue, newValue) {
			return true
		}
	}
}

// Value returns the current value of the counter.
func (c StrictMonotonousCounter) Value() uint64 {
	return c.atomicCounter.Load()
}

// Increment atomically increments the counter and returns the new value.
func (c StrictMonotonousCounter) Increment() uint64 {
	return c.atomicCounter.Add(1)
}
