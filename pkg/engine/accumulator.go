package engine

import (
	"sort"

	"github.com/solverlab/constraintstream/pkg/tuple"
)

// Match is one terminal delta of a named constraint.
type Match struct {
	Constraint string
	Delta      tuple.Delta
}

// ScoreAccumulator folds terminal match deltas into a running score. The
// engine guarantees the stream it delivers is duplicate-free and causally
// ordered per tuple identity (never two inserts without an intervening
// retract), and that a batch is only delivered once the fact mutation that
// produced it has fully settled. The numeric meaning of a match is the
// accumulator's business.
type ScoreAccumulator interface {
	Accumulate(m Match)
}

// MatchCounter counts live matches per constraint.
type MatchCounter struct {
	counts map[string]int
	total  int
}

// NewMatchCounter creates an empty match counter.
func NewMatchCounter() *MatchCounter {
	return &MatchCounter{counts: make(map[string]int)}
}

// Accumulate implements ScoreAccumulator.
func (c *MatchCounter) Accumulate(m Match) {
	d := 1
	if m.Delta.Kind == tuple.Retracted {
		d = -1
	}
	c.counts[m.Constraint] += d
	c.total += d
}

// Count returns the live match count of one constraint.
func (c *MatchCounter) Count(constraint string) int { return c.counts[constraint] }

// Total returns the live match count across all constraints.
func (c *MatchCounter) Total() int { return c.total }

// Constraints returns the constraint names seen so far, sorted.
func (c *MatchCounter) Constraints() []string {
	names := make([]string, 0, len(c.counts))
	for name := range c.counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WeightedSum folds matches into a single signed score using a per-constraint
// weight function. Constraints without a weight function count 1 per match.
//
// The weight applied at insert is recorded per live match and subtracted on
// retract. Facts mutate in place before an update reaches the engine, so
// recomputing the weight on the retract half would credit the stale match at
// its fresh weight and drift the score permanently.
type WeightedSum struct {
	weights map[string]func(tuple.Tuple) int64
	applied map[matchKey]int64
	score   int64
}

type matchKey struct {
	constraint string
	tuple      tuple.Key
}

// NewWeightedSum creates a weighted-sum accumulator.
func NewWeightedSum(weights map[string]func(tuple.Tuple) int64) *WeightedSum {
	return &WeightedSum{weights: weights, applied: make(map[matchKey]int64)}
}

// Accumulate implements ScoreAccumulator.
func (w *WeightedSum) Accumulate(m Match) {
	k := matchKey{constraint: m.Constraint, tuple: m.Delta.Tuple.Key()}
	if m.Delta.Kind == tuple.Retracted {
		w.score -= w.applied[k]
		delete(w.applied, k)
		return
	}
	weight := int64(1)
	if fn, ok := w.weights[m.Constraint]; ok && fn != nil {
		weight = fn(m.Delta.Tuple)
	}
	w.applied[k] = weight
	w.score += weight
}

// Score returns the current score.
func (w *WeightedSum) Score() int64 { return w.score }

// MatchRecorder keeps the raw match stream, mostly for tests and debugging.
type MatchRecorder struct {
	Matches []Match
}

// Accumulate implements ScoreAccumulator.
func (r *MatchRecorder) Accumulate(m Match) {
	r.Matches = append(r.Matches, m)
}
