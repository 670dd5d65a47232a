package engine

import (
	"github.com/solverlab/constraintstream/pkg/index"
	"github.com/solverlab/constraintstream/pkg/joiner"
	"github.com/solverlab/constraintstream/pkg/stream"
	"github.com/solverlab/constraintstream/pkg/tuple"
)

// rnode is the runtime instance of one stream graph node. Deltas are pushed
// depth-first through the out edges: by the time apply returns, every
// downstream consequence of the delta has been computed and journaled.
type rnode interface {
	apply(s *Session, port int, d tuple.Delta) error
	base() *baseRT
}

type edge struct {
	child rnode
	port  int
}

type baseRT struct {
	outs      []edge
	terminals []string
}

func (b *baseRT) base() *baseRT { return b }

func (b *baseRT) addOut(child rnode, port int) {
	b.outs = append(b.outs, edge{child: child, port: port})
}

func (b *baseRT) addTerminal(name string) {
	b.terminals = append(b.terminals, name)
}

func (b *baseRT) emit(s *Session, d tuple.Delta) error {
	for _, name := range b.terminals {
		s.batch = append(s.batch, Match{Constraint: name, Delta: d})
	}
	for _, e := range b.outs {
		if err := e.child.apply(s, e.port, d); err != nil {
			return err
		}
	}
	return nil
}

// sourceRT admits facts into a unary stream. Filtered entity sources track
// admission so that a fact toggling between uninitialized and initialized
// produces exactly the boundary retract or insert, even though the fact's
// identity never changes.
type sourceRT struct {
	baseRT
	node     *stream.Node
	admitted map[tuple.Key]tuple.Tuple
}

func newSourceRT(n *stream.Node) *sourceRT {
	return &sourceRT{node: n, admitted: make(map[tuple.Key]tuple.Tuple)}
}

func (r *sourceRT) apply(s *Session, port int, d tuple.Delta) error {
	return index.NewConsistencyError("source node fed by an upstream node")
}

func (r *sourceRT) admits(fact any) (bool, error) {
	c := r.node.Class()
	if !c.Entity || r.node.Unfiltered() {
		return true, nil
	}
	ok, err := c.Initialized(fact)
	if err != nil {
		return false, newExtractorFailure("initialization check of class "+c.Name, err)
	}
	return ok, nil
}

func (r *sourceRT) insertFact(s *Session, fact any) error {
	ok, err := r.admits(fact)
	if err != nil || !ok {
		return err
	}
	t := tuple.Of(fact)
	k := t.Key()
	if _, dup := r.admitted[k]; dup {
		return index.NewConsistencyError("fact %v admitted twice by source %s", fact, r.node)
	}
	r.admitted[k] = t
	s.journal.record(func() error {
		delete(r.admitted, k)
		return nil
	})
	return r.emit(s, tuple.Insert(t))
}

func (r *sourceRT) retractFact(s *Session, fact any) error {
	t := tuple.Of(fact)
	k := t.Key()
	if _, ok := r.admitted[k]; !ok {
		return nil // never admitted, nothing downstream to undo
	}
	delete(r.admitted, k)
	s.journal.record(func() error {
		r.admitted[k] = t
		return nil
	})
	return r.emit(s, tuple.Retract(t))
}

func (r *sourceRT) updateFact(s *Session, fact any) error {
	t := tuple.Of(fact)
	k := t.Key()
	_, was := r.admitted[k]
	now, err := r.admits(fact)
	if err != nil {
		return err
	}
	switch {
	case was && now:
		// The stale tuple leaves, the fresh one enters: downstream joins
		// re-extract keys on the insert half.
		if err := r.emit(s, tuple.Retract(t)); err != nil {
			return err
		}
		return r.emit(s, tuple.Insert(t))
	case was && !now:
		return r.retractFact(s, fact)
	case !was && now:
		return r.insertFact(s, fact)
	default:
		return nil
	}
}

// filterRT keeps the tuples its predicate accepted. Membership is tracked,
// not re-derived: a retract propagates iff the tuple passed on insert, so an
// impure predicate cannot desynchronize the downstream live set (impure
// predicates are documented misuse, not a supported case).
type filterRT struct {
	baseRT
	node   *stream.Node
	passed map[tuple.Key]tuple.Tuple
}

func newFilterRT(n *stream.Node) *filterRT {
	return &filterRT{node: n, passed: make(map[tuple.Key]tuple.Tuple)}
}

func (r *filterRT) apply(s *Session, port int, d tuple.Delta) error {
	k := d.Tuple.Key()
	if d.Kind == tuple.Retracted {
		if _, ok := r.passed[k]; !ok {
			return nil
		}
		t := r.passed[k]
		delete(r.passed, k)
		s.journal.record(func() error {
			r.passed[k] = t
			return nil
		})
		return r.emit(s, d)
	}

	ok, err := r.node.Predicate()(d.Tuple.Facts())
	if err != nil {
		return newExtractorFailure("filter predicate", err)
	}
	if !ok {
		return nil
	}
	if _, dup := r.passed[k]; dup {
		return index.NewConsistencyError("tuple %s passed filter twice", d.Tuple)
	}
	r.passed[k] = d.Tuple
	s.journal.record(func() error {
		delete(r.passed, k)
		return nil
	})
	return r.emit(s, d)
}

// joinRT pairs tuples from its left input with unary facts from its right
// input. Index maintenance is symmetric even though the API is logically
// asymmetric: each side indexes its own extracted key so future deltas on
// the opposite side see it. Keys are stored per live tuple because facts
// mutate in place; the retract half of an update probes and unindexes with
// the key extracted at insert time.
type joinRT struct {
	baseRT
	node      *stream.Node
	comps     []joiner.Component
	leftIx    *index.Index
	rightIx   *index.Index
	leftKeys  map[tuple.Key]index.Key
	rightKeys map[tuple.Key]index.Key
	live      map[tuple.Key]tuple.Tuple
}

func newJoinRT(n *stream.Node, comps []joiner.Component) *joinRT {
	kinds := make([]joiner.Kind, len(comps))
	for i, c := range comps {
		kinds[i] = c.Kind
	}
	return &joinRT{
		node:      n,
		comps:     comps,
		leftIx:    index.New(kinds),
		rightIx:   index.New(kinds),
		leftKeys:  make(map[tuple.Key]index.Key),
		rightKeys: make(map[tuple.Key]index.Key),
		live:      make(map[tuple.Key]tuple.Tuple),
	}
}

func (r *joinRT) leftKey(t tuple.Tuple) (index.Key, error) {
	key := make(index.Key, len(r.comps))
	for i, c := range r.comps {
		fact := t.Fact(c.LeftFact)
		if c.Kind == joiner.KindOverlap {
			start, err := c.Left(fact)
			if err != nil {
				return nil, newExtractorFailure("overlap joiner left start property", err)
			}
			end, err := c.LeftEnd(fact)
			if err != nil {
				return nil, newExtractorFailure("overlap joiner left end property", err)
			}
			key[i] = index.Interval{Start: start, End: end}
			continue
		}
		v, err := c.Left(fact)
		if err != nil {
			return nil, newExtractorFailure(c.Kind.String()+" joiner left property", err)
		}
		key[i] = v
	}
	return key, nil
}

func (r *joinRT) rightKey(t tuple.Tuple) (index.Key, error) {
	fact := t.Fact(0)
	key := make(index.Key, len(r.comps))
	for i, c := range r.comps {
		if c.Kind == joiner.KindOverlap {
			start, err := c.Right(fact)
			if err != nil {
				return nil, newExtractorFailure("overlap joiner right start property", err)
			}
			end, err := c.RightEnd(fact)
			if err != nil {
				return nil, newExtractorFailure("overlap joiner right end property", err)
			}
			key[i] = index.Interval{Start: start, End: end}
			continue
		}
		v, err := c.Right(fact)
		if err != nil {
			return nil, newExtractorFailure(c.Kind.String()+" joiner right property", err)
		}
		key[i] = v
	}
	return key, nil
}

func (r *joinRT) apply(s *Session, port int, d tuple.Delta) error {
	if r.node.SelfJoin() {
		return r.applySelf(s, d)
	}
	if port == 0 {
		return r.applyLeft(s, d)
	}
	return r.applyRight(s, d)
}

func (r *joinRT) applyLeft(s *Session, d tuple.Delta) error {
	lt := d.Tuple
	id := lt.Key()

	if d.Kind == tuple.Inserted {
		if _, dup := r.leftKeys[id]; dup {
			return index.NewConsistencyError("left tuple %s joined twice", lt)
		}
		k, err := r.leftKey(lt)
		if err != nil {
			return err
		}
		matches, err := r.probe(r.rightIx, k, false)
		if err != nil {
			return err
		}
		if err := r.indexLeft(s, id, k, lt); err != nil {
			return err
		}
		for _, rt := range matches {
			if err := r.insertOut(s, lt.Extend(rt.Fact(0))); err != nil {
				return err
			}
		}
		return nil
	}

	k, ok := r.leftKeys[id]
	if !ok {
		return index.NewConsistencyError("retracting left tuple %s that never joined", lt)
	}
	matches, err := r.probe(r.rightIx, k, false)
	if err != nil {
		return err
	}
	if err := r.unindexLeft(s, id, k, lt); err != nil {
		return err
	}
	for _, rt := range matches {
		if err := r.retractOut(s, lt.Extend(rt.Fact(0))); err != nil {
			return err
		}
	}
	return nil
}

func (r *joinRT) applyRight(s *Session, d tuple.Delta) error {
	rt := d.Tuple
	id := rt.Key()
	fact := rt.Fact(0)

	if d.Kind == tuple.Inserted {
		if _, dup := r.rightKeys[id]; dup {
			return index.NewConsistencyError("right tuple %s joined twice", rt)
		}
		k, err := r.rightKey(rt)
		if err != nil {
			return err
		}
		matches, err := r.probe(r.leftIx, k, true)
		if err != nil {
			return err
		}
		if err := r.indexRight(s, id, k, rt); err != nil {
			return err
		}
		for _, lt := range matches {
			if err := r.insertOut(s, lt.Extend(fact)); err != nil {
				return err
			}
		}
		return nil
	}

	k, ok := r.rightKeys[id]
	if !ok {
		return index.NewConsistencyError("retracting right tuple %s that never joined", rt)
	}
	matches, err := r.probe(r.leftIx, k, true)
	if err != nil {
		return err
	}
	if err := r.unindexRight(s, id, k, rt); err != nil {
		return err
	}
	for _, lt := range matches {
		if err := r.retractOut(s, lt.Extend(fact)); err != nil {
			return err
		}
	}
	return nil
}

// applySelf handles the unique-pair special case: left and right are the
// same underlying source, so one upstream delta plays both roles. Both
// orientations are probed before either index admits the fact; the implicit
// strict ordering on planning id excludes self-pairing and makes exactly one
// orientation match for any partner.
func (r *joinRT) applySelf(s *Session, d tuple.Delta) error {
	t := d.Tuple
	id := t.Key()
	fact := t.Fact(0)

	if d.Kind == tuple.Inserted {
		if _, dup := r.leftKeys[id]; dup {
			return index.NewConsistencyError("fact %v entered unique-pair twice", fact)
		}
		kl, err := r.leftKey(t)
		if err != nil {
			return err
		}
		kr, err := r.rightKey(t)
		if err != nil {
			return err
		}
		asLeft, err := r.probe(r.rightIx, kl, false)
		if err != nil {
			return err
		}
		asRight, err := r.probe(r.leftIx, kr, true)
		if err != nil {
			return err
		}
		if err := r.indexLeft(s, id, kl, t); err != nil {
			return err
		}
		if err := r.indexRight(s, id, kr, t); err != nil {
			return err
		}
		for _, partner := range asLeft {
			if err := r.insertOut(s, t.Extend(partner.Fact(0))); err != nil {
				return err
			}
		}
		for _, partner := range asRight {
			if err := r.insertOut(s, partner.Extend(fact)); err != nil {
				return err
			}
		}
		return nil
	}

	kl, ok := r.leftKeys[id]
	if !ok {
		return index.NewConsistencyError("retracting fact %v that never entered unique-pair", fact)
	}
	kr := r.rightKeys[id]
	asLeft, err := r.probe(r.rightIx, kl, false)
	if err != nil {
		return err
	}
	asRight, err := r.probe(r.leftIx, kr, true)
	if err != nil {
		return err
	}
	if err := r.unindexLeft(s, id, kl, t); err != nil {
		return err
	}
	if err := r.unindexRight(s, id, kr, t); err != nil {
		return err
	}
	for _, partner := range asLeft {
		if err := r.retractOut(s, t.Extend(partner.Fact(0))); err != nil {
			return err
		}
	}
	for _, partner := range asRight {
		if err := r.retractOut(s, partner.Extend(fact)); err != nil {
			return err
		}
	}
	return nil
}

// probe drains a cursor before any index mutation can invalidate it.
func (r *joinRT) probe(ix *index.Index, k index.Key, inverted bool) ([]tuple.Tuple, error) {
	cur, err := ix.Probe(k, inverted)
	if err != nil {
		return nil, err
	}
	return cur.Collect()
}

func (r *joinRT) indexLeft(s *Session, id tuple.Key, k index.Key, t tuple.Tuple) error {
	if err := r.leftIx.Insert(k, t); err != nil {
		return err
	}
	r.leftKeys[id] = k
	s.journal.record(func() error {
		delete(r.leftKeys, id)
		return r.leftIx.Remove(k, t)
	})
	return nil
}

func (r *joinRT) unindexLeft(s *Session, id tuple.Key, k index.Key, t tuple.Tuple) error {
	if err := r.leftIx.Remove(k, t); err != nil {
		return err
	}
	delete(r.leftKeys, id)
	s.journal.record(func() error {
		r.leftKeys[id] = k
		return r.leftIx.Insert(k, t)
	})
	return nil
}

func (r *joinRT) indexRight(s *Session, id tuple.Key, k index.Key, t tuple.Tuple) error {
	if err := r.rightIx.Insert(k, t); err != nil {
		return err
	}
	r.rightKeys[id] = k
	s.journal.record(func() error {
		delete(r.rightKeys, id)
		return r.rightIx.Remove(k, t)
	})
	return nil
}

func (r *joinRT) unindexRight(s *Session, id tuple.Key, k index.Key, t tuple.Tuple) error {
	if err := r.rightIx.Remove(k, t); err != nil {
		return err
	}
	delete(r.rightKeys, id)
	s.journal.record(func() error {
		r.rightKeys[id] = k
		return r.rightIx.Insert(k, t)
	})
	return nil
}

func (r *joinRT) insertOut(s *Session, out tuple.Tuple) error {
	k := out.Key()
	if _, dup := r.live[k]; dup {
		return index.NewConsistencyError("join emitted tuple %s twice", out)
	}
	r.live[k] = out
	s.journal.record(func() error {
		delete(r.live, k)
		return nil
	})
	return r.emit(s, tuple.Insert(out))
}

func (r *joinRT) retractOut(s *Session, out tuple.Tuple) error {
	k := out.Key()
	if _, ok := r.live[k]; !ok {
		return index.NewConsistencyError("join retracted tuple %s it never emitted", out)
	}
	delete(r.live, k)
	s.journal.record(func() error {
		r.live[k] = out
		return nil
	})
	return r.emit(s, tuple.Retract(out))
}
