package operation

import (
	"encoding/binary"
	"fmt"

	"github.com/onstrata/strata-go/model/strata"
)

const (

	// codes for checkpoint entities keyed by their identifier
	codeCheckpoint         = 30 // checkpoint header stored by checkpoint ID
	codeCheckpointContents = 31 // checkpoint contents stored by contents ID
	codeTransactionEffects = 32 // transaction effects stored by transaction digest

	// codes for indexing a single identifier by an integer
	codeSequenceToCheckpoint = 40 // index mapping checkpoint sequence number to checkpoint ID

	// codes for consumer progress tracking
	codeJobConsumerProcessed = 70 // processed index for a job consumer
)

func makePrefix(code byte, keys ...interface{}) []byte {
	prefix := make([]byte, 1)
	prefix[0] = code
	for _, key := range keys {
		prefix = append(prefix, b(key)...)
	}
	return prefix
}

func b(v interface{}) []byte {
	switch i := v.(type) {
	case uint8:
		return []byte{i}
	case uint32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, i)
		return b
	case uint64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, i)
		return b
	case string:
		return []byte(i)
	case strata.Identifier:
		return i[:]
	default:
		panic(fmt.Sprintf("unsupported type to convert (%T)", v))
	}
}
