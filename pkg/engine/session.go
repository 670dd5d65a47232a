// Package engine evaluates a compiled constraint stream graph incrementally.
// A session holds the working set of facts, one runtime instance of the
// stream graph and the joiner indexes of its join nodes; every fact
// insert/update/retract is propagated synchronously and atomically as
// insert/retract tuple deltas, so downstream score accumulators only ever
// observe completed, causally ordered delta batches.
//
// Sessions are single-writer by design: correctness of incremental
// propagation depends on strict delta ordering per fact identity, so a
// session is never shared between goroutines. Parallel solving runs
// independent sessions, each with its own fact store and indexes.
package engine

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/solverlab/constraintstream/pkg/domain"
	"github.com/solverlab/constraintstream/pkg/joiner"
	"github.com/solverlab/constraintstream/pkg/stream"
	"github.com/solverlab/constraintstream/pkg/tuple"
)

// Session is one solving session's incremental evaluator.
type Session struct {
	id      string
	log     logr.Logger
	graph   *stream.Graph
	store   *factStore
	sources []*sourceRT
	rts     map[*stream.Node]rnode
	accums  []ScoreAccumulator
	journal journal
	batch   []Match
	aborted bool
}

// Option configures a session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Session) { s.log = log.WithName("session") }
}

// WithAccumulator subscribes a score accumulator to the terminal match
// stream. Accumulators observe batches only after a mutation fully settles.
func WithAccumulator(acc ScoreAccumulator) Option {
	return func(s *Session) { s.accums = append(s.accums, acc) }
}

// NewSession instantiates the runtime of a stream graph.
func NewSession(g *stream.Graph, opts ...Option) (*Session, error) {
	s := &Session{
		id:    uuid.NewString(),
		log:   logr.Discard(),
		graph: g,
		store: newFactStore(),
		rts:   make(map[*stream.Node]rnode),
	}
	for _, o := range opts {
		o(s)
	}

	for _, n := range g.Nodes() {
		switch n.Kind() {
		case stream.KindSource:
			rt := newSourceRT(n)
			s.rts[n] = rt
			s.sources = append(s.sources, rt)
		case stream.KindFilter:
			rt := newFilterRT(n)
			s.rts[n] = rt
			s.rts[n.Left()].base().addOut(rt, 0)
		case stream.KindJoin:
			comps := n.Joiner().Components()
			if n.SelfJoin() {
				comps = append(comps[:len(comps):len(comps)], s.uniquePairComponent(n.Left().Class()))
			}
			rt := newJoinRT(n, comps)
			s.rts[n] = rt
			s.rts[n.Left()].base().addOut(rt, 0)
			if !n.SelfJoin() {
				s.rts[n.Right()].base().addOut(rt, 1)
			}
		default:
			return nil, fmt.Errorf("unknown node kind %v", n.Kind())
		}
	}
	for name, n := range g.Constraints() {
		s.rts[n].base().addTerminal(name)
	}

	s.log.V(2).Info("session created", "id", s.id, "nodes", len(g.Nodes()),
		"constraints", len(g.Constraints()))
	return s, nil
}

// uniquePairComponent builds the implicit strict ordering of unique-pair
// joins: planning id first, the fact's stable insertion sequence as the tie
// break, so two distinct facts with equal planning ids still pair exactly
// once.
func (s *Session) uniquePairComponent(class *domain.Class) joiner.Component {
	prop := func(fact any) (any, error) {
		pid, err := class.PlanningID(fact)
		if err != nil {
			return nil, err
		}
		rec := s.store.get(fact)
		if rec == nil {
			return nil, fmt.Errorf("fact %v has no insertion sequence", fact)
		}
		return joiner.Pair{Primary: pid, Secondary: rec.seq}, nil
	}
	return joiner.Component{Kind: joiner.KindLessThan, Left: prop, Right: prop}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Graph returns the stream graph the session runs.
func (s *Session) Graph() *stream.Graph { return s.graph }

// FactCount returns the size of the working set.
func (s *Session) FactCount() int { return s.store.len() }

// Insert adds a fact to the working set and propagates the consequences.
func (s *Session) Insert(fact any) error {
	if s.aborted {
		return ErrSessionAborted
	}
	if !comparableFact(fact) {
		return fmt.Errorf("fact of type %T cannot carry identity", fact)
	}
	class, err := s.graph.Registry().ClassOf(fact)
	if err != nil {
		return err
	}
	if s.store.has(fact) {
		return fmt.Errorf("fact %v already inserted", fact)
	}

	s.begin()
	rec, _ := s.store.add(fact, class)
	s.journal.record(func() error {
		_, err := s.store.remove(fact)
		return err
	})
	s.log.V(5).Info("insert", "class", class.Name, "seq", rec.seq)

	for _, src := range s.sources {
		if !s.graph.Registry().AssignableTo(class, src.node.Class()) {
			continue
		}
		if err := src.insertFact(s, fact); err != nil {
			return s.fail(err)
		}
	}
	s.commit()
	return nil
}

// Update signals that a fact's attributes changed in place. Downstream this
// is a retract of the stale tuples followed by an insert of the fresh ones;
// the fact's identity and insertion sequence are unchanged.
func (s *Session) Update(fact any) error {
	if s.aborted {
		return ErrSessionAborted
	}
	rec := s.store.get(fact)
	if rec == nil {
		return fmt.Errorf("fact %v is not in the working set", fact)
	}

	s.begin()
	s.log.V(5).Info("update", "class", rec.class.Name, "seq", rec.seq)
	for _, src := range s.sources {
		if !s.graph.Registry().AssignableTo(rec.class, src.node.Class()) {
			continue
		}
		if err := src.updateFact(s, fact); err != nil {
			return s.fail(err)
		}
	}
	s.commit()
	return nil
}

// Retract removes a fact from the working set, retracting every tuple that
// transitively contains it.
func (s *Session) Retract(fact any) error {
	if s.aborted {
		return ErrSessionAborted
	}
	rec := s.store.get(fact)
	if rec == nil {
		return fmt.Errorf("fact %v is not in the working set", fact)
	}

	s.begin()
	s.log.V(5).Info("retract", "class", rec.class.Name, "seq", rec.seq)
	for _, src := range s.sources {
		if !s.graph.Registry().AssignableTo(rec.class, src.node.Class()) {
			continue
		}
		if err := src.retractFact(s, fact); err != nil {
			return s.fail(err)
		}
	}
	removed, err := s.store.remove(fact)
	if err != nil {
		return s.fail(err)
	}
	s.journal.record(func() error {
		s.store.readd(fact, removed)
		return nil
	})
	s.commit()
	return nil
}

// LiveTuples returns the current live tuple set of a stream node. Intended
// for diagnostics and for equivalence checking against batch recomputation.
func (s *Session) LiveTuples(n *stream.Node) []tuple.Tuple {
	switch rt := s.rts[n].(type) {
	case *sourceRT:
		return collect(rt.admitted)
	case *filterRT:
		return collect(rt.passed)
	case *joinRT:
		return collect(rt.live)
	default:
		return nil
	}
}

func collect(m map[tuple.Key]tuple.Tuple) []tuple.Tuple {
	out := make([]tuple.Tuple, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	return out
}

func (s *Session) begin() {
	s.journal.reset()
	s.batch = s.batch[:0]
}

// commit delivers the buffered terminal batch and forgets the undo log: the
// mutation is now the session's consistent state.
func (s *Session) commit() {
	for _, m := range s.batch {
		for _, acc := range s.accums {
			acc.Accumulate(m)
		}
	}
	s.log.V(8).Info("committed", "matches", len(s.batch))
	s.batch = s.batch[:0]
	s.journal.reset()
}

// fail rolls the session back to the state before the current mutation and
// drops the buffered batch. Consistency violations additionally poison the
// session: they indicate an engine defect, and continuing would corrupt
// scores silently.
func (s *Session) fail(err error) error {
	if uerr := s.journal.unwind(); uerr != nil {
		s.log.Error(uerr, "rollback failed")
		s.aborted = true
	}
	s.batch = s.batch[:0]
	if IsConsistencyViolation(err) {
		s.aborted = true
	}
	s.log.V(2).Info("move failed", "reason", err.Error(), "aborted", s.aborted)
	return err
}
