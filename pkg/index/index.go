// Package index implements the joiner indexes that let a join node answer
// "which stored tuples match this probe key" in better than linear time.
//
// The index layout is layered and derived from the merged joiner's component
// kinds: equality components partition the stored tuples first, as nested
// hash maps, and the first ordering or overlap component is organized inside
// each partition as a B-tree supporting range scans. Any further
// non-equality components are checked as residual filters while scanning.
// Equality outermost, range innermost: this minimizes the scanned candidate
// set for composite joiners.
//
// Keys are extracted once, when a tuple is inserted, and removal uses the
// stored key rather than re-extraction; facts may mutate in place between
// the retract and insert halves of an update, so re-extracting at removal
// time would look up the wrong bucket.
package index

import (
	"fmt"

	"github.com/google/btree"

	"github.com/solverlab/constraintstream/pkg/joiner"
	"github.com/solverlab/constraintstream/pkg/tuple"
)

// Key is the concatenation of a joiner's component keys, one element per
// component in merge order. Overlap components use an Interval element.
type Key []any

// Interval is the key element of an overlap component, a half-open
// [Start, End) range.
type Interval struct {
	Start any
	End   any
}

// ConsistencyError reports a violated internal index invariant: removing a
// tuple that was never indexed, indexing the same tuple twice, or reusing a
// probe cursor across mutations. It indicates an engine defect and must
// abort the session rather than mask the bug.
type ConsistencyError struct {
	Message string
}

func (e *ConsistencyError) Error() string {
	return "index consistency violation: " + e.Message
}

// NewConsistencyError builds a ConsistencyError. The engine package uses it
// for membership invariants that live outside the index proper but belong to
// the same taxonomy.
func NewConsistencyError(format string, args ...any) error {
	return &ConsistencyError{Message: fmt.Sprintf(format, args...)}
}

func newConsistencyError(format string, args ...any) error {
	return NewConsistencyError(format, args...)
}

const treeDegree = 16

// Index organizes one side of a join by the merged joiner's extracted keys.
type Index struct {
	kinds  []joiner.Kind
	eqComp []int // component positions partitioned by hash, outermost first
	neComp []int // non-equality component positions, neComp[0] is tree-backed
	ordOff []int // per component, offset into an entry's canonical key vector
	ordLen int
	root   *partition
	size   int
	gen    uint64
}

type partition struct {
	children map[any]*partition // depth < len(eqComp)
	plain    map[tuple.Key]tuple.Tuple
	tree     *btree.BTreeG[*treeNode]
	byID     map[tuple.Key]*entry
}

type entry struct {
	t    tuple.Tuple
	ords []okey
}

type treeNode struct {
	primary okey
	entries map[tuple.Key]*entry
}

// New creates an index for the given joiner component kinds.
func New(kinds []joiner.Kind) *Index {
	ix := &Index{
		kinds:  kinds,
		ordOff: make([]int, len(kinds)),
		root:   &partition{},
	}
	for i, k := range kinds {
		if k == joiner.KindEqual {
			ix.eqComp = append(ix.eqComp, i)
			ix.ordOff[i] = -1
			continue
		}
		ix.neComp = append(ix.neComp, i)
		ix.ordOff[i] = ix.ordLen
		if k == joiner.KindOverlap {
			ix.ordLen += 2 // start and end
		} else {
			ix.ordLen++
		}
	}
	return ix
}

// Len returns the number of indexed tuples.
func (ix *Index) Len() int { return ix.size }

// Insert stores a tuple under its extracted key.
func (ix *Index) Insert(key Key, t tuple.Tuple) error {
	if len(key) != len(ix.kinds) {
		return newConsistencyError("key arity %d does not match joiner arity %d", len(key), len(ix.kinds))
	}
	ords, err := ix.canonKey(key)
	if err != nil {
		return err
	}
	for _, c := range ix.eqComp {
		if !hashableKey(key[c]) {
			return fmt.Errorf("equality key of type %T is not hashable", key[c])
		}
	}

	p := ix.root
	for _, c := range ix.eqComp {
		if p.children == nil {
			p.children = make(map[any]*partition)
		}
		child, ok := p.children[key[c]]
		if !ok {
			child = &partition{}
			p.children[key[c]] = child
		}
		p = child
	}

	id := t.Key()
	if ix.ordLen == 0 {
		if p.plain == nil {
			p.plain = make(map[tuple.Key]tuple.Tuple)
		}
		if _, dup := p.plain[id]; dup {
			return newConsistencyError("tuple %s indexed twice", t)
		}
		p.plain[id] = t
	} else {
		if p.byID == nil {
			p.byID = make(map[tuple.Key]*entry)
			p.tree = btree.NewG(treeDegree, func(a, b *treeNode) bool {
				return a.primary.compare(b.primary) < 0
			})
		}
		if _, dup := p.byID[id]; dup {
			return newConsistencyError("tuple %s indexed twice", t)
		}
		e := &entry{t: t, ords: ords}
		p.byID[id] = e
		pivot := &treeNode{primary: e.ords[0]}
		node, ok := p.tree.Get(pivot)
		if !ok {
			node = &treeNode{primary: e.ords[0], entries: make(map[tuple.Key]*entry)}
			p.tree.ReplaceOrInsert(node)
		}
		node.entries[id] = e
	}

	ix.size++
	ix.gen++
	return nil
}

// Remove drops a tuple previously inserted under the same stored key.
func (ix *Index) Remove(key Key, t tuple.Tuple) error {
	if len(key) != len(ix.kinds) {
		return newConsistencyError("key arity %d does not match joiner arity %d", len(key), len(ix.kinds))
	}
	if err := ix.remove(ix.root, 0, key, t); err != nil {
		return err
	}
	ix.size--
	ix.gen++
	return nil
}

func (ix *Index) remove(p *partition, depth int, key Key, t tuple.Tuple) error {
	if depth < len(ix.eqComp) {
		eqVal := key[ix.eqComp[depth]]
		child, ok := p.children[eqVal]
		if !ok {
			return newConsistencyError("removing tuple %s from a missing partition", t)
		}
		if err := ix.remove(child, depth+1, key, t); err != nil {
			return err
		}
		if child.empty() {
			delete(p.children, eqVal)
		}
		return nil
	}

	id := t.Key()
	if ix.ordLen == 0 {
		if _, ok := p.plain[id]; !ok {
			return newConsistencyError("removing tuple %s that was never indexed", t)
		}
		delete(p.plain, id)
		return nil
	}

	e, ok := p.byID[id]
	if !ok {
		return newConsistencyError("removing tuple %s that was never indexed", t)
	}
	delete(p.byID, id)
	pivot := &treeNode{primary: e.ords[0]}
	node, ok := p.tree.Get(pivot)
	if !ok {
		return newConsistencyError("removing tuple %s from a missing tree node", t)
	}
	delete(node.entries, id)
	if len(node.entries) == 0 {
		p.tree.Delete(node)
	}
	return nil
}

func (p *partition) empty() bool {
	if len(p.children) > 0 || len(p.plain) > 0 {
		return false
	}
	return p.byID == nil || len(p.byID) == 0
}

// Probe returns the stored tuples matching the given partner key. When
// inverted is false the probe key is the left side of the joiner predicate
// and the stored keys are the right side; when true, the roles swap. The
// returned cursor is finite and restartable per call but must not be reused
// after any intervening Insert or Remove.
func (ix *Index) Probe(key Key, inverted bool) (*Cursor, error) {
	if len(key) != len(ix.kinds) {
		return nil, newConsistencyError("probe key arity %d does not match joiner arity %d", len(key), len(ix.kinds))
	}
	ords, err := ix.canonKey(key)
	if err != nil {
		return nil, err
	}

	p := ix.root
	for _, c := range ix.eqComp {
		child, ok := p.children[key[c]]
		if !ok {
			return ix.emptyCursor(), nil
		}
		p = child
	}

	if ix.ordLen == 0 {
		matches := make([]tuple.Tuple, 0, len(p.plain))
		for _, t := range p.plain {
			matches = append(matches, t)
		}
		return ix.cursor(matches), nil
	}
	if p.tree == nil {
		return ix.emptyCursor(), nil
	}

	var matches []tuple.Tuple
	collect := func(node *treeNode) {
		for _, e := range node.entries {
			if ix.residualMatch(e, ords, inverted) {
				matches = append(matches, e.t)
			}
		}
	}
	ix.scanPrimary(p.tree, ords, inverted, collect)
	return ix.cursor(matches), nil
}

// scanPrimary walks the ordered tier within the bounds implied by the first
// non-equality component and the probe key.
func (ix *Index) scanPrimary(tree *btree.BTreeG[*treeNode], probe []okey, inverted bool, collect func(*treeNode)) {
	primary := ix.neComp[0]
	kind := ix.kinds[primary]
	off := ix.ordOff[primary]

	if kind == joiner.KindOverlap {
		// Stored starts below the probe interval's end; the symmetric half
		// of the overlap test is a residual check per entry.
		probeEnd := probe[off+1]
		tree.Ascend(func(node *treeNode) bool {
			if node.primary.compare(probeEnd) >= 0 {
				return false
			}
			collect(node)
			return true
		})
		return
	}

	// Solve "probe OP stored" (or "stored OP probe" when inverted) for the
	// stored key range.
	lower, inclusive := boundFor(kind, inverted)
	pk := probe[off]
	if lower {
		pivot := &treeNode{primary: pk}
		tree.AscendGreaterOrEqual(pivot, func(node *treeNode) bool {
			if !inclusive && node.primary.compare(pk) == 0 {
				return true
			}
			collect(node)
			return true
		})
		return
	}
	tree.Ascend(func(node *treeNode) bool {
		c := node.primary.compare(pk)
		if c > 0 || (c == 0 && !inclusive) {
			return false
		}
		collect(node)
		return true
	})
}

// boundFor maps an ordering kind to the stored-key scan direction: lower
// reports whether matches sit above the probe key, inclusive whether equal
// keys match.
func boundFor(kind joiner.Kind, inverted bool) (lower, inclusive bool) {
	switch kind {
	case joiner.KindLessThan:
		lower, inclusive = true, false
	case joiner.KindLessThanOrEqual:
		lower, inclusive = true, true
	case joiner.KindGreaterThan:
		lower, inclusive = false, false
	case joiner.KindGreaterThanOrEqual:
		lower, inclusive = false, true
	}
	if inverted {
		lower = !lower
	}
	return
}

// residualMatch applies every non-equality component that the tree scan did
// not fully decide: the overlap half of the primary component and all
// components beyond the first.
func (ix *Index) residualMatch(e *entry, probe []okey, inverted bool) bool {
	for i, c := range ix.neComp {
		kind := ix.kinds[c]
		off := ix.ordOff[c]
		if kind == joiner.KindOverlap {
			pStart, pEnd := probe[off], probe[off+1]
			sStart, sEnd := e.ords[off], e.ords[off+1]
			if i == 0 {
				// Tree already checked sStart < pEnd.
				if sEnd.compare(pStart) <= 0 {
					return false
				}
				continue
			}
			if sStart.compare(pEnd) >= 0 || sEnd.compare(pStart) <= 0 {
				return false
			}
			continue
		}
		if i == 0 {
			continue // fully decided by the tree scan
		}
		cmp := e.ords[off].compare(probe[off])
		left := -cmp // probe relative to stored
		if inverted {
			left = cmp
		}
		switch kind {
		case joiner.KindLessThan:
			if left >= 0 {
				return false
			}
		case joiner.KindLessThanOrEqual:
			if left > 0 {
				return false
			}
		case joiner.KindGreaterThan:
			if left <= 0 {
				return false
			}
		case joiner.KindGreaterThanOrEqual:
			if left < 0 {
				return false
			}
		}
	}
	return true
}

// canonKey canonicalizes the non-equality elements of a key.
func (ix *Index) canonKey(key Key) ([]okey, error) {
	if ix.ordLen == 0 {
		return nil, nil
	}
	ords := make([]okey, ix.ordLen)
	for _, c := range ix.neComp {
		off := ix.ordOff[c]
		if ix.kinds[c] == joiner.KindOverlap {
			iv, ok := key[c].(Interval)
			if !ok {
				return nil, fmt.Errorf("overlap component expects an Interval key, got %T", key[c])
			}
			start, err := canonOrd(iv.Start)
			if err != nil {
				return nil, err
			}
			end, err := canonOrd(iv.End)
			if err != nil {
				return nil, err
			}
			ords[off], ords[off+1] = start, end
			continue
		}
		k, err := canonOrd(key[c])
		if err != nil {
			return nil, err
		}
		ords[off] = k
	}
	return ords, nil
}

// hashableKey reports whether v can be used as a hash partition key.
func hashableKey(v any) (ok bool) {
	if v == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[any]struct{}{v: {}}
	return true
}
