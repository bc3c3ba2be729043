package strata

import "fmt"

// Version is the sequential version number of an object. Every write to an
// object produces the next version.
type Version uint64

// ObjectKey identifies one exact version of one object. It is the unit of
// correlation between "a transaction read this object version" and "a
// transaction overwrote this object version".
type ObjectKey struct {
	ObjectID Identifier
	Version  Version
}

func (key ObjectKey) String() string {
	return fmt.Sprintf("%v@%d", key.ObjectID, key.Version)
}

// SharedObjectRef records that a transaction accessed the given object at
// the given version under the shared-access regime.
type SharedObjectRef struct {
	ObjectID Identifier
	Version  Version
}

// Key returns the object-version pair the reference points at.
func (ref SharedObjectRef) Key() ObjectKey {
	return ObjectKey{ObjectID: ref.ObjectID, Version: ref.Version}
}

// ExecutionStatus reports whether a transaction executed successfully.
// Failed transactions still produce effects and still occupy their slot in
// the checkpoint contents.
type ExecutionStatus uint8

const (
	ExecutionStatusSuccess ExecutionStatus = iota
	ExecutionStatusFailure
)

func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionStatusSuccess:
		return "success"
	case ExecutionStatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// TransactionEffects is the certified outcome of executing one transaction.
// Effects are produced by the execution layer and are immutable once
// certified. The ordering logic treats the payload as opaque and only reads
// the digest, the dependency set and the object access records.
type TransactionEffects struct {
	// TransactionDigest is the identity of the executed transaction.
	TransactionDigest Identifier
	// Status reports whether the transaction succeeded.
	Status ExecutionStatus
	// Dependencies lists the digests of transactions whose effects this
	// execution required to have already been applied.
	Dependencies []Identifier
	// ModifiedAtVersions records, per mutated object, the version that this
	// transaction overwrote.
	ModifiedAtVersions []ObjectKey
	// SharedObjects lists the object versions this transaction accessed
	// under shared access. An object version that also appears in
	// ModifiedAtVersions was written, not merely read.
	SharedObjects []SharedObjectRef
}

// ID returns the digest of the transaction the effects belong to.
func (te *TransactionEffects) ID() Identifier {
	return te.TransactionDigest
}
