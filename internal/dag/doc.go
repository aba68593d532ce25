// Package dag defines the immutable test dependency graph: construction and
// validation from a flat node list, stable content-addressed GraphHash,
// deterministic topological (leaves-first) and BFS (roots-first) orderings,
// ancestor/descendant closure queries, and cycle detection.
//
// Execution state (what ran, what's pending) is deliberately not modeled
// here — see internal/executor — so the same TestGraph can be executed
// repeatedly, or by multiple independent Executor runs, without mutation.
package dag
