// Package tuple defines the unit of incremental propagation: fixed-arity
// groups of facts and the signed insert/retract deltas carried between stream
// nodes. There is no update delta anywhere in the engine; an update is always
// modeled as a retract of the stale tuple followed by an insert of the fresh
// one.
package tuple

import "fmt"

// MaxArity bounds tuple width: streams produce singles, pairs and triples.
const MaxArity = 3

// Tuple is an ordered, fixed-arity group of facts. Facts are identity-bearing
// values: two tuples are the same tuple iff their facts are identity-equal
// position by position.
type Tuple struct {
	facts [MaxArity]any
	arity int
}

// Of builds a tuple over the given facts.
func Of(facts ...any) Tuple {
	if len(facts) == 0 || len(facts) > MaxArity {
		panic(fmt.Sprintf("tuple arity %d out of range", len(facts)))
	}
	t := Tuple{arity: len(facts)}
	copy(t.facts[:], facts)
	return t
}

// Extend appends one fact, growing the arity by one.
func (t Tuple) Extend(fact any) Tuple {
	if t.arity >= MaxArity {
		panic(fmt.Sprintf("tuple arity %d out of range", t.arity+1))
	}
	out := t
	out.facts[out.arity] = fact
	out.arity++
	return out
}

// Arity returns the number of facts in the tuple.
func (t Tuple) Arity() int { return t.arity }

// Fact returns the fact at position i.
func (t Tuple) Fact(i int) any { return t.facts[i] }

// Facts returns the facts in order.
func (t Tuple) Facts() []any { return t.facts[:t.arity] }

// Key is the comparable identity of a tuple, usable as a map key for set
// membership tracking.
type Key struct {
	facts [MaxArity]any
	arity int
}

// Key returns the tuple's identity key.
func (t Tuple) Key() Key { return Key{facts: t.facts, arity: t.arity} }

func (t Tuple) String() string {
	s := "("
	for i := 0; i < t.arity; i++ {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%v", t.facts[i])
	}
	return s + ")"
}

// DeltaKind signs a delta.
type DeltaKind int

const (
	Inserted DeltaKind = iota
	Retracted
)

func (k DeltaKind) String() string {
	if k == Inserted {
		return "insert"
	}
	return "retract"
}

// Delta is a signed tuple event, the only vocabulary of incremental
// propagation.
type Delta struct {
	Kind  DeltaKind
	Tuple Tuple
}

// Insert builds an insertion delta.
func Insert(t Tuple) Delta { return Delta{Kind: Inserted, Tuple: t} }

// Retract builds a retraction delta.
func Retract(t Tuple) Delta { return Delta{Kind: Retracted, Tuple: t} }

// Inverse flips the sign of the delta.
func (d Delta) Inverse() Delta {
	if d.Kind == Inserted {
		return Delta{Kind: Retracted, Tuple: d.Tuple}
	}
	return Delta{Kind: Inserted, Tuple: d.Tuple}
}

func (d Delta) String() string {
	return fmt.Sprintf("%s%s", d.Kind, d.Tuple)
}
