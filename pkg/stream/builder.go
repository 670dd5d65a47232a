package stream

import (
	"github.com/solverlab/constraintstream/pkg/domain"
	"github.com/solverlab/constraintstream/pkg/joiner"
)

// Factory is the declarative entry point of the constraint API. Streams are
// chained off From, FromUnfiltered and FromUniquePair; construction errors
// are collected and surfaced by Graph, so chains never need mid-expression
// error checks.
type Factory struct {
	reg *domain.Registry
	g   *Graph
	err error
}

// NewFactory creates a stream factory over the given class registry.
func NewFactory(reg *domain.Registry) *Factory {
	return &Factory{
		reg: reg,
		g:   &Graph{reg: reg, constraints: make(map[string]*Node)},
	}
}

func (f *Factory) fail(err error) {
	if f.err == nil {
		f.err = err
	}
}

func (f *Factory) source(class string, unfiltered bool) *Uni {
	c := f.reg.Lookup(class)
	if c == nil {
		f.fail(newDefinitionError("class %q is not registered", class))
		return &Uni{f: f}
	}
	n := f.g.add(&Node{
		kind:       KindSource,
		arity:      1,
		class:      c,
		unfiltered: unfiltered,
	})
	return &Uni{f: f, node: n}
}

// From starts a stream of all live facts assignable to the class. If the
// class is a planning entity the stream is implicitly composed with the
// class's own full-initialization filter; that composition is not inherited
// by subclass entities matched through a polymorphic supertype source.
func (f *Factory) From(class string) *Uni {
	return f.source(class, false)
}

// FromUnfiltered is From without the implicit initialization filter.
func (f *Factory) FromUnfiltered(class string) *Uni {
	return f.source(class, true)
}

// FromUniquePair starts a stream of every unique pair of two distinct
// instances of the class. It is sugar for a self-join of From(class) with an
// implicit LessThan joiner on the planning id merged behind the explicit
// joiners, so the pair set never holds both (a, b) and (b, a) and never
// (a, a). Explicit joiners fold left-to-right into one composite before
// reaching the join node.
func (f *Factory) FromUniquePair(class string, joiners ...joiner.Joiner) *Bi {
	src := f.source(class, false)
	if src.node == nil {
		return &Bi{f: f}
	}
	if src.node.class.PlanningID == nil {
		f.fail(newDefinitionError("class %q has no planning id for unique-pair ordering", class))
		return &Bi{f: f}
	}
	merged := joiner.Merge(joiners...)
	if err := merged.Err(); err != nil {
		f.fail(&InvalidStreamDefinitionError{Message: "malformed joiner", Cause: err})
		return &Bi{f: f}
	}
	n := f.g.add(&Node{
		kind:     KindJoin,
		arity:    2,
		join:     merged,
		selfJoin: true,
		left:     src.node,
		right:    src.node,
	})
	return &Bi{f: f, node: n}
}

// Graph validates and returns the compiled stream graph.
func (f *Factory) Graph() (*Graph, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := f.g.validate(); err != nil {
		return nil, err
	}
	return f.g, nil
}

func (f *Factory) filter(in *Node, pred func(facts []any) (bool, error)) *Node {
	if in == nil {
		return nil
	}
	return f.g.add(&Node{
		kind:  KindFilter,
		arity: in.arity,
		pred:  pred,
		left:  in,
	})
}

func (f *Factory) join(left, right *Node, joiners []joiner.Joiner) *Node {
	if left == nil || right == nil {
		return nil
	}
	merged := joiner.Merge(joiners...)
	if err := merged.Err(); err != nil {
		f.fail(&InvalidStreamDefinitionError{Message: "malformed joiner", Cause: err})
		return nil
	}
	return f.g.add(&Node{
		kind:  KindJoin,
		arity: left.arity + 1,
		join:  merged,
		left:  left,
		right: right,
	})
}

func (f *Factory) constraint(name string, n *Node) {
	if n == nil {
		return
	}
	if name == "" {
		f.fail(newDefinitionError("constraint with an empty name"))
		return
	}
	if _, dup := f.g.constraints[name]; dup {
		f.fail(newDefinitionError("constraint %q defined twice", name))
		return
	}
	f.g.constraints[name] = n
}

// Uni is a stream of single facts.
type Uni struct {
	f    *Factory
	node *Node
}

// Node returns the stream's terminal graph node.
func (s *Uni) Node() *Node { return s.node }

// Filter keeps the facts the predicate accepts. Predicates must be pure:
// the engine tracks filter membership rather than re-evaluating on retract.
func (s *Uni) Filter(pred func(a any) (bool, error)) *Uni {
	n := s.f.filter(s.node, func(facts []any) (bool, error) {
		return pred(facts[0])
	})
	return &Uni{f: s.f, node: n}
}

// Join pairs this stream with another unary stream under the joiners, folded
// left-to-right into one composite.
func (s *Uni) Join(other *Uni, joiners ...joiner.Joiner) *Bi {
	n := s.f.join(s.node, other.node, joiners)
	return &Bi{f: s.f, node: n}
}

// AsConstraint names the stream as a terminal constraint output.
func (s *Uni) AsConstraint(name string) *Uni {
	s.f.constraint(name, s.node)
	return s
}

// Bi is a stream of fact pairs.
type Bi struct {
	f    *Factory
	node *Node
}

// Node returns the stream's terminal graph node.
func (s *Bi) Node() *Node { return s.node }

// Filter keeps the pairs the predicate accepts.
func (s *Bi) Filter(pred func(a, b any) (bool, error)) *Bi {
	n := s.f.filter(s.node, func(facts []any) (bool, error) {
		return pred(facts[0], facts[1])
	})
	return &Bi{f: s.f, node: n}
}

// Join extends the pairs with a third fact from a unary stream. Joiner left
// properties read the first fact of the pair unless repositioned with On.
func (s *Bi) Join(other *Uni, joiners ...joiner.Joiner) *Tri {
	n := s.f.join(s.node, other.node, joiners)
	return &Tri{f: s.f, node: n}
}

// AsConstraint names the stream as a terminal constraint output.
func (s *Bi) AsConstraint(name string) *Bi {
	s.f.constraint(name, s.node)
	return s
}

// Tri is a stream of fact triples.
type Tri struct {
	f    *Factory
	node *Node
}

// Node returns the stream's terminal graph node.
func (s *Tri) Node() *Node { return s.node }

// Filter keeps the triples the predicate accepts.
func (s *Tri) Filter(pred func(a, b, c any) (bool, error)) *Tri {
	n := s.f.filter(s.node, func(facts []any) (bool, error) {
		return pred(facts[0], facts[1], facts[2])
	})
	return &Tri{f: s.f, node: n}
}

// AsConstraint names the stream as a terminal constraint output.
func (s *Tri) AsConstraint(name string) *Tri {
	s.f.constraint(name, s.node)
	return s
}
