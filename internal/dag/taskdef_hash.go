package dag

import (
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"

	"testweaver/internal/model"
)

// computeDefHash hashes the declarative definition fields of a test node:
// assertion, executable, sorted dependency set, and sorted parameters.
//
// Determinism rules mirror the graph hash in taskgraph.go: dependencies are treated as
// a set (sorted), parameters are sorted by key, and every field is
// length-prefixed so no concatenation is ambiguous.
func computeDefHash(n model.TestNode) DefHash {
	h := blake3.New()

	writeField := func(data []byte) {
		length := uint64(len(data))
		lengthBytes := []byte{
			byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
			byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
		}
		h.Write(lengthBytes)
		h.Write(data)
	}

	writeField([]byte(n.Assertion))
	writeField([]byte(n.Executable))

	deps := make([]string, 0, len(n.DependsOn))
	for _, d := range n.DependsOn {
		deps = append(deps, string(d))
	}
	sort.Strings(deps)
	writeField([]byte{byte(len(deps))})
	for _, d := range deps {
		writeField([]byte(d))
	}

	paramKeys := make([]string, 0, len(n.Parameters))
	for k := range n.Parameters {
		paramKeys = append(paramKeys, k)
	}
	sort.Strings(paramKeys)
	writeField([]byte{byte(len(paramKeys))})
	for _, k := range paramKeys {
		writeField([]byte(k))
		writeField([]byte(n.Parameters[k]))
	}

	sum := h.Sum(nil)
	return DefHash(hex.EncodeToString(sum))
}
