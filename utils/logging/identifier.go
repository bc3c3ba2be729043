package logging

import (
	"encoding/hex"

	"github.com/onstrata/strata-go/model/strata"
)

// ID returns the raw bytes of an identifier, for use with zerolog's Hex
// field helper.
func ID(id strata.Identifier) []byte {
	return id[:]
}

// IDs hex-encodes a list of identifiers for structured logging.
func IDs(ids []strata.Identifier) []string {
	ss := make([]string, 0, len(ids))
	for _, id := range ids {
		ss = append(ss, hex.EncodeToString(id[:]))
	}
	return ss
}
