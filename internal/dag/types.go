package dag

import "testweaver/internal/model"

// GraphHash is the deterministic identity of a TestGraph.
//
// It is computed solely from node definition content and dependency
// structure. It MUST be stable across different insertion orders of nodes
// and edges.
type GraphHash string

// DefHash is the deterministic identity of a single test's declared
// definition (assertion, executable, dependency set, parameters).
type DefHash string

// Edge represents a dependency relation: To depends on From.
//
// A directed edge From -> To means To can only run after From completes.
type Edge struct {
	From model.TestId
	To   model.TestId
}

// Node is an immutable node in the TestGraph.
type Node struct {
	Id             model.TestId
	Test           model.TestNode
	DefinitionHash DefHash
	canonicalIndex int
}

// CanonicalIndex returns the node's deterministic position in the graph's
// canonical ordering.
func (n *Node) CanonicalIndex() int { return n.canonicalIndex }

func (h GraphHash) String() string { return string(h) }
func (h DefHash) String() string   { return string(h) }
