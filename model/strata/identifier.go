package strata

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/exp/slices"
)

// Identifier represents a 32-byte unique identifier for an entity.
type Identifier [32]byte

// IdentifierLen is the number of bytes in an Identifier.
const IdentifierLen = 32

// ZeroID is the lowest value in the 32-byte ID space.
var ZeroID = Identifier{}

func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

func (id Identifier) Bytes() []byte {
	return id[:]
}

// Compare orders identifiers by their raw byte representation, which is the
// canonical total order used for deterministic tie-breaking. It returns -1,
// 0 or 1 depending on whether id is smaller than, equal to, or larger than
// other.
func (id Identifier) Compare(other Identifier) int {
	return bytes.Compare(id[:], other[:])
}

// HexStringToIdentifier converts a hex string to an identifier. The input
// must be 64 hexadecimal characters.
func HexStringToIdentifier(hexString string) (Identifier, error) {
	var id Identifier
	n, err := hex.Decode(id[:], []byte(hexString))
	if err != nil {
		return ZeroID, err
	}
	if n != IdentifierLen {
		return ZeroID, fmt.Errorf("malformed input, expected %d bytes, got %d", IdentifierLen, n)
	}
	return id, nil
}

// HashToID converts a raw hash to an identifier. Only the first 32 bytes of
// the hash are used.
func HashToID(hash []byte) Identifier {
	var id Identifier
	copy(id[:], hash)
	return id
}

// IdentifierList is a list of identifiers, ordered by ascending byte value.
type IdentifierList []Identifier

// Len returns the number of identifiers in the list.
func (il IdentifierList) Len() int {
	return len(il)
}

// Contains returns whether the target identifier is part of the list.
func (il IdentifierList) Contains(target Identifier) bool {
	return slices.Contains(il, target)
}

// Sorted returns a sorted copy of the list, leaving the receiver untouched.
func (il IdentifierList) Sorted() IdentifierList {
	dup := slices.Clone(il)
	slices.SortFunc(dup, Identifier.Compare)
	return dup
}

// Strings converts the list to a list of hex strings, mainly for logging.
func (il IdentifierList) Strings() []string {
	ss := make([]string, 0, len(il))
	for _, id := range il {
		ss = append(ss, id.String())
	}
	return ss
}
