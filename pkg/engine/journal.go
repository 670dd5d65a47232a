package engine

// journal records the inverse of every internal state change made while
// propagating one fact mutation. A failed propagation unwinds the journal in
// reverse so the session lands back on its last consistent state; a
// successful one simply discards it. Terminal deltas are not journaled: they
// are buffered separately and only delivered after the journal is discarded.
type journal struct {
	undos []func() error
}

func (j *journal) record(undo func() error) {
	j.undos = append(j.undos, undo)
}

func (j *journal) reset() {
	j.undos = j.undos[:0]
}

// unwind applies the recorded inverses newest-first. It keeps going past
// individual failures so the session gets as close to consistent as
// possible, but reports the first failure: an undo that cannot apply means
// the session state is no longer trustworthy.
func (j *journal) unwind() error {
	var first error
	for i := len(j.undos) - 1; i >= 0; i-- {
		if err := j.undos[i](); err != nil && first == nil {
			first = err
		}
	}
	j.reset()
	return first
}
