// Package joiner implements join predicates for constraint streams. A joiner
// compares a key extracted from the left side of a join with a key extracted
// from the right side using one of a small closed set of comparison kinds.
// Joiners compose by conjunction: merging joiners concatenates their
// components in order, and the combined index key of a merged joiner is the
// concatenation of each component's key.
package joiner

import "fmt"

// Property extracts a comparable key from a single fact. Properties must be
// pure and total over every registered instance: the engine treats a property
// error as fatal to the solver move under evaluation.
type Property func(fact any) (any, error)

// Kind classifies a joiner component by its comparison.
type Kind int

const (
	KindEqual Kind = iota
	KindLessThan
	KindLessThanOrEqual
	KindGreaterThan
	KindGreaterThanOrEqual
	KindOverlap
)

func (k Kind) String() string {
	switch k {
	case KindEqual:
		return "equal"
	case KindLessThan:
		return "lessThan"
	case KindLessThanOrEqual:
		return "lessThanOrEqual"
	case KindGreaterThan:
		return "greaterThan"
	case KindGreaterThanOrEqual:
		return "greaterThanOrEqual"
	case KindOverlap:
		return "overlapping"
	default:
		return "unknown"
	}
}

// Component is a single comparison of a (possibly merged) joiner.
type Component struct {
	Kind        Kind
	Left, Right Property
	// Overlap components compare half-open [start, end) intervals: Left and
	// Right extract the interval starts, LeftEnd and RightEnd the ends.
	LeftEnd, RightEnd Property
	// LeftFact selects which fact of the left tuple the left properties read.
	// Joins with a unary left side always use fact 0.
	LeftFact int
}

// Joiner is an ordered conjunction of comparison components. The zero value
// matches everything (a cross join).
type Joiner struct {
	components []Component
	err        error
}

// Components returns the ordered component list.
func (j Joiner) Components() []Component { return j.components }

// Kinds returns the comparison kind of each component in order. This is the
// shape the index layer is built from.
func (j Joiner) Kinds() []Kind {
	kinds := make([]Kind, len(j.components))
	for i, c := range j.components {
		kinds[i] = c.Kind
	}
	return kinds
}

// Err reports a malformed joiner construction. Construction errors are
// deferred here so that the fluent API stays chainable; the stream builder
// surfaces them as invalid stream definitions before any tuple is evaluated.
func (j Joiner) Err() error { return j.err }

// On retargets the left-side properties of every component to fact i of the
// left tuple. Used when joining onto a stream of arity above one.
func (j Joiner) On(i int) Joiner {
	out := Joiner{components: make([]Component, len(j.components)), err: j.err}
	for n, c := range j.components {
		c.LeftFact = i
		out.components[n] = c
	}
	return out
}

func (j Joiner) String() string {
	if len(j.components) == 0 {
		return "true"
	}
	s := ""
	for i, c := range j.components {
		if i > 0 {
			s += " ∧ "
		}
		s += c.Kind.String()
	}
	return s
}

func ordered(kind Kind, props []Property) Joiner {
	switch len(props) {
	case 1:
		return Joiner{components: []Component{{Kind: kind, Left: props[0], Right: props[0]}}}
	case 2:
		return Joiner{components: []Component{{Kind: kind, Left: props[0], Right: props[1]}}}
	default:
		return Joiner{err: fmt.Errorf("%s joiner needs one shared or two distinct properties, got %d",
			kind, len(props))}
	}
}

// Equal joins facts whose extracted keys are equal. With a single property the
// same key is extracted from both sides; with two, the first reads the left
// side and the second the right side.
func Equal(props ...Property) Joiner { return ordered(KindEqual, props) }

// LessThan joins facts whose left key orders strictly below the right key.
func LessThan(props ...Property) Joiner { return ordered(KindLessThan, props) }

// LessThanOrEqual joins facts whose left key orders at or below the right key.
func LessThanOrEqual(props ...Property) Joiner { return ordered(KindLessThanOrEqual, props) }

// GreaterThan joins facts whose left key orders strictly above the right key.
func GreaterThan(props ...Property) Joiner { return ordered(KindGreaterThan, props) }

// GreaterThanOrEqual joins facts whose left key orders at or above the right key.
func GreaterThanOrEqual(props ...Property) Joiner { return ordered(KindGreaterThanOrEqual, props) }

// Overlapping joins facts whose [start, end) intervals overlap. With two
// properties the same start and end extractors read both sides; with four,
// the first pair reads the left side and the second pair the right side.
func Overlapping(props ...Property) Joiner {
	switch len(props) {
	case 2:
		return Joiner{components: []Component{{
			Kind: KindOverlap,
			Left: props[0], LeftEnd: props[1],
			Right: props[0], RightEnd: props[1],
		}}}
	case 4:
		return Joiner{components: []Component{{
			Kind: KindOverlap,
			Left: props[0], LeftEnd: props[1],
			Right: props[2], RightEnd: props[3],
		}}}
	default:
		return Joiner{err: fmt.Errorf("overlapping joiner needs two shared or four distinct properties, got %d",
			len(props))}
	}
}

// Merge folds joiners left-to-right into a single composite joiner. Merging
// is associative and order-preserving: component order decides index layering
// tie-breaks, so Merge(a, Merge(b, c)) and Merge(Merge(a, b), c) produce the
// same composite.
func Merge(joiners ...Joiner) Joiner {
	out := Joiner{}
	for _, j := range joiners {
		if j.err != nil && out.err == nil {
			out.err = j.err
		}
		out.components = append(out.components, j.components...)
	}
	return out
}
