// Package stream compiles the declarative constraint API into a directed
// acyclic graph of stream operators. The graph is an immutable description:
// it carries no tuples and no indexes, only node shapes (source, filter,
// join, unique-pair), their joiners and their output arities. The engine
// package instantiates one runtime copy of the graph per solving session.
package stream

import (
	"fmt"

	"github.com/solverlab/constraintstream/pkg/domain"
	"github.com/solverlab/constraintstream/pkg/joiner"
)

// Kind classifies a stream node.
type Kind int

const (
	KindSource Kind = iota
	KindFilter
	KindJoin
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindFilter:
		return "filter"
	case KindJoin:
		return "join"
	default:
		return "unknown"
	}
}

// Node is the immutable description of one stream operator.
type Node struct {
	id    int
	kind  Kind
	arity int

	// Source fields.
	class      *domain.Class
	unfiltered bool

	// Filter fields. The predicate receives the tuple's facts in order.
	pred func(facts []any) (bool, error)

	// Join fields. The merged joiner; selfJoin marks a unique-pair node whose
	// left and right are the same underlying source.
	join     joiner.Joiner
	selfJoin bool

	left, right *Node
}

// ID returns the node's position in the graph's topological order.
func (n *Node) ID() int { return n.id }

// Kind returns the operator kind.
func (n *Node) Kind() Kind { return n.kind }

// Arity returns the output tuple arity.
func (n *Node) Arity() int { return n.arity }

// Class returns the source class of a source node.
func (n *Node) Class() *domain.Class { return n.class }

// Unfiltered reports whether an entity source skips the initialization filter.
func (n *Node) Unfiltered() bool { return n.unfiltered }

// Predicate returns a filter node's predicate.
func (n *Node) Predicate() func(facts []any) (bool, error) { return n.pred }

// Joiner returns a join node's merged joiner.
func (n *Node) Joiner() joiner.Joiner { return n.join }

// SelfJoin reports whether the node is a unique-pair self join.
func (n *Node) SelfJoin() bool { return n.selfJoin }

// Left returns the node's left (or only) input.
func (n *Node) Left() *Node { return n.left }

// Right returns a join node's right input.
func (n *Node) Right() *Node { return n.right }

func (n *Node) String() string {
	switch n.kind {
	case KindSource:
		name := "from"
		if n.unfiltered {
			name = "fromUnfiltered"
		}
		return fmt.Sprintf("%s(%s)", name, n.class.Name)
	case KindFilter:
		return "filter"
	case KindJoin:
		if n.selfJoin {
			return fmt.Sprintf("uniquePair[%s]", n.join)
		}
		return fmt.Sprintf("join[%s]", n.join)
	}
	return "unknown"
}

// Graph is the compiled operator DAG of one constraint set.
type Graph struct {
	reg         *domain.Registry
	nodes       []*Node
	constraints map[string]*Node
}

// Registry returns the class registry the graph was built against.
func (g *Graph) Registry() *domain.Registry { return g.reg }

// Nodes returns the nodes in topological order: every node's inputs precede
// it in the slice.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Constraints returns the named terminal nodes.
func (g *Graph) Constraints() map[string]*Node { return g.constraints }

func (g *Graph) add(n *Node) *Node {
	n.id = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return n
}

// validate checks the structural invariants the builder is supposed to keep.
func (g *Graph) validate() error {
	if len(g.constraints) == 0 {
		return newDefinitionError("no constraint outputs defined")
	}
	for _, n := range g.nodes {
		if n.left != nil && n.left.id >= n.id {
			return newDefinitionError("node %d is not in topological order", n.id)
		}
		if n.right != nil && n.right.id >= n.id {
			return newDefinitionError("node %d is not in topological order", n.id)
		}
		switch n.kind {
		case KindSource:
			if n.class == nil {
				return newDefinitionError("source node %d has no class", n.id)
			}
		case KindFilter:
			if n.pred == nil || n.left == nil {
				return newDefinitionError("filter node %d is incomplete", n.id)
			}
		case KindJoin:
			if n.left == nil || n.right == nil {
				return newDefinitionError("join node %d is incomplete", n.id)
			}
			if n.right.arity != 1 {
				return newDefinitionError("join node %d has a non-unary right input", n.id)
			}
			if n.arity != n.left.arity+1 {
				return newDefinitionError("join node %d has inconsistent arity", n.id)
			}
			if err := n.join.Err(); err != nil {
				return &InvalidStreamDefinitionError{Message: "malformed joiner", Cause: err}
			}
		}
	}
	return nil
}
