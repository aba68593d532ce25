// Package hashutil provides the HashProvider interface spec.md §6 defines
// as an external collaborator, plus a reference implementation. The core
// never computes hashes itself; DefaultHashProvider exists only because
// some caller has to, and it is convenient to ship one the core can be
// exercised against in tests and in a minimal CLI.
package hashutil

import (
	"context"
	"encoding/hex"
	"os"
	"sort"

	"github.com/zeebo/blake3"

	"testweaver/internal/model"
)

// Provider computes a stationarity token ("target hash") per test id. The
// core tolerates an empty result (treat all tests as changed with a
// warning) and a slow provider is the caller's context-cancellation
// responsibility — no internal batching or timeout is imposed here beyond
// what ctx already expresses.
type Provider interface {
	ComputeHashes(ctx context.Context, nodes []model.TestNode) (map[model.TestId]string, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, nodes []model.TestNode) (map[model.TestId]string, error)

func (f ProviderFunc) ComputeHashes(ctx context.Context, nodes []model.TestNode) (map[model.TestId]string, error) {
	return f(ctx, nodes)
}

// DefaultHashProvider is a reference Provider: the stationarity token is a
// blake3 digest of the test's executable file content plus its declared
// parameters, generalizing the teacher's TaskHasher.ComputeHash (content +
// env, length-prefixed, sorted) from a build task's cacheable inputs to a
// test's reliability-relevant inputs. It does not hash transitive
// dependency content — a dependency's own hash change is its own test's
// concern, not this one's.
type DefaultHashProvider struct{}

func (DefaultHashProvider) ComputeHashes(ctx context.Context, nodes []model.TestNode) (map[model.TestId]string, error) {
	out := make(map[model.TestId]string, len(nodes))
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out[n.Id] = hashNode(n)
	}
	return out, nil
}

func hashNode(n model.TestNode) string {
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

	writeField([]byte(n.Executable))

	content, err := os.ReadFile(n.Executable)
	if err != nil {
		// A missing/unreadable executable still needs a stable token: hash
		// the error string so a later-appearing file is treated as changed.
		content = []byte("unreadable:" + err.Error())
	}
	writeField(content)

	keys := make([]string, 0, len(n.Parameters))
	for k := range n.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeField([]byte{byte(len(keys))})
	for _, k := range keys {
		writeField([]byte(k))
		writeField([]byte(n.Parameters[k]))
	}

	return hex.EncodeToString(h.Sum(nil))
}
