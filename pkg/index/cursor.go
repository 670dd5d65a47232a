package index

import "github.com/solverlab/constraintstream/pkg/tuple"

// Cursor walks the matches of one probe. A cursor is finite and restartable
// per Probe call, but it is pinned to the index generation it was created
// under: any intervening Insert or Remove invalidates it, and a subsequent
// Next reports a consistency violation through Err instead of returning
// stale matches.
type Cursor struct {
	ix      *Index
	gen     uint64
	matches []tuple.Tuple
	pos     int
	err     error
}

func (ix *Index) cursor(matches []tuple.Tuple) *Cursor {
	return &Cursor{ix: ix, gen: ix.gen, matches: matches}
}

func (ix *Index) emptyCursor() *Cursor {
	return &Cursor{ix: ix, gen: ix.gen}
}

// Next returns the next matching tuple, or false when the cursor is
// exhausted or invalidated.
func (c *Cursor) Next() (tuple.Tuple, bool) {
	if c.err != nil {
		return tuple.Tuple{}, false
	}
	if c.ix.gen != c.gen {
		c.err = newConsistencyError("probe cursor used after an index mutation")
		return tuple.Tuple{}, false
	}
	if c.pos >= len(c.matches) {
		return tuple.Tuple{}, false
	}
	t := c.matches[c.pos]
	c.pos++
	return t, true
}

// Err reports whether the cursor was invalidated mid-iteration.
func (c *Cursor) Err() error { return c.err }

// Collect drains the cursor into a slice.
func (c *Cursor) Collect() ([]tuple.Tuple, error) {
	out := make([]tuple.Tuple, 0, len(c.matches)-c.pos)
	for {
		t, ok := c.Next()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out, c.err
}
