package operation

import (
	"errors"

	"github.com/dgraph-io/badger/v2"

	"github.com/onstrata/strata-go/storage"
)

// SkipDuplicates wraps an operation to ignore storage.ErrAlreadyExists, for
// writes that are expected to be idempotent.
func SkipDuplicates(op func(*badger.Txn) error) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		err := op(tx)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil
		}
		return err
	}
}

// SkipNonExist wraps an operation to ignore storage.ErrNotFound, for removals
// that may race with earlier removals of the same key.
func SkipNonExist(op func(*badger.Txn) error) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		err := op(tx)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
}

// RetryOnConflict repeats the operation until it completes without hitting a
// badger transaction conflict.
func RetryOnConflict(action func(func(*badger.Txn) error) error, op func(tx *badger.Txn) error) error {
	for {
		err := action(op)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}
