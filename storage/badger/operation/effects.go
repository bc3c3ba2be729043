package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/onstrata/strata-go/model/strata"
)

func InsertTransactionEffects(txDigest strata.Identifier, effects *strata.TransactionEffects) func(*badger.Txn) error {
	return insert(makePrefix(codeTransactionEffects, txDigest), effects)
}

func RetrieveTransactionEffects(txDigest strata.Identifier, effects *strata.TransactionEffects) func(*badger.Txn) error {
	return retrieve(makePrefix(codeTransactionEffects, txDigest), effects)
}

func RemoveTransactionEffects(txDigest strata.Identifier) func(*badger.Txn) error {
	return remove(makePrefix(codeTransactionEffects, txDigest))
}

// BatchInsertTransactionEffects upserts the effects in a write batch. Effects
// are content-addressed by the transaction digest, so overwriting an existing
// entry replaces it with identical data.
func BatchInsertTransactionEffects(effects *strata.TransactionEffects) func(*badger.WriteBatch) error {
	return batchWrite(makePrefix(codeTransactionEffects, effects.TransactionDigest), effects)
}
