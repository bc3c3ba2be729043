package strata

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// canonicalEncMode enforces deterministic encoding rules (sorted map keys,
// shortest-form integers) so that an entity has the same encoding, and
// therefore the same identifier, on every node.
var canonicalEncMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("could not construct canonical encoding mode: %v", err))
	}
	return em
}()

// CanonicalEncode returns the canonical binary encoding of the given entity.
// All model types are encodable; a failure indicates an unencodable value
// was passed in, which is a programming error.
func CanonicalEncode(entity interface{}) []byte {
	data, err := canonicalEncMode.Marshal(entity)
	if err != nil {
		panic(fmt.Sprintf("could not encode entity: %v", err))
	}
	return data
}

// MakeID computes the identifier of an entity as the SHA2-256 hash of its
// canonical encoding.
func MakeID(entity interface{}) Identifier {
	hash := sha256.Sum256(CanonicalEncode(entity))
	return HashToID(hash[:])
}
