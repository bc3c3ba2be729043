package executor

import (
	"time"
)

// Option is a functional option for configuring the executor.
type Option func(*Executor)

// WithTaskLimit overrides the maximum number of checkpoints executed
// concurrently. The default is twice the number of CPUs.
func WithTaskLimit(limit int) Option {
	return func(e *Executor) {
		e.taskLimit = limit
	}
}

// WithRetryDelay overrides the pause between retries of fetching checkpoint
// data that has not arrived in local storage yet.
func WithRetryDelay(delay time.Duration) Option {
	return func(e *Executor) {
		e.retryDelay = delay
	}
}
